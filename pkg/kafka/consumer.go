package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/retry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads each registered topic on its own goroutine and hands
// messages to the topic handler one at a time.
type Consumer struct {
	cfg       *ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]Reader
	newReader func(topic string) Reader
	dlq       Writer
	policy    *retry.Policy
	logger    *applogger.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "priceagent",
		StartOffset: kafka.LastOffset,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]Reader),
		policy: retry.New(
			retry.WithMaxAttempts(cfg.RetryMax+1),
			retry.WithBackoff(cfg.BackoffMin, 2),
			retry.WithMaxDelay(cfg.BackoffMax),
			retry.WithJitter(true),
		),
		logger: applogger.Nop(),
	}
	c.newReader = func(topic string) Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			StartOffset: cfg.StartOffset,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initConsumerMetrics()
	return c, nil
}

// SetLogger sets the consumer logger.
func (c *Consumer) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.logger = l
	}
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per handler and returns immediately.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic, handler := range c.handlers {
		reader := c.newReader(topic)
		c.readers[topic] = reader
		c.wg.Add(1)
		go c.consume(ctx, handler, reader)
		c.logger.Info("kafka consumer started", applogger.String("topic", topic), applogger.String("group", c.cfg.GroupID))
	}
	return nil
}

// Stop cancels the readers and waits for in-flight messages.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.logger.Warn("close reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logger.Warn("close dlq writer", applogger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, handler MessageHandler, reader Reader) {
	defer c.wg.Done()
	topic := handler.Topic()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.BackoffMin):
			}
			continue
		}

		start := time.Now()
		err = c.handle(ctx, handler, msg)
		consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

		if err != nil {
			consumerMessagesTotal.WithLabelValues(topic, "error").Inc()
			c.logger.Error("handle message", applogger.String("topic", topic), applogger.Error(err))
			if !c.deadLetter(ctx, topic, msg) {
				continue
			}
		} else {
			consumerMessagesTotal.WithLabelValues(topic, "ok").Inc()
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit message", applogger.String("topic", topic), applogger.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	return c.policy.Do(ctx, func(ctx context.Context, attempt int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = retry.Permanent(fmt.Errorf("panic in handler: %v", r))
			}
		}()
		return handler.Handle(ctx, msg.Value)
	})
}

// deadLetter forwards msg to the DLQ and reports whether the offset may be committed.
func (c *Consumer) deadLetter(ctx context.Context, topic string, msg kafka.Message) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("write dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return err == nil
}

var (
	consumerMessagesTotal *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "priceagent_kafka_consumer_messages_total", Help: "Messages handled by topic and result"},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "priceagent_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
