package di

import (
	"context"
	"fmt"
	"time"

	"PriceAgent/internal/domain/repository"
	"PriceAgent/internal/domain/service"
	"PriceAgent/internal/handler/api"
	internalrepo "PriceAgent/internal/repository"
	"PriceAgent/internal/service/coingecko"
	"PriceAgent/internal/service/ratelimit"
	"PriceAgent/internal/services/model"
	"PriceAgent/internal/services/sequence"
	"PriceAgent/internal/usecase"
	"PriceAgent/pkg/cache"
	pkgch "PriceAgent/pkg/clickhouse"
	"PriceAgent/pkg/config"
	xhttp "PriceAgent/pkg/http"
	pkgkafka "PriceAgent/pkg/kafka"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/metrics"
	pkgmongo "PriceAgent/pkg/mongodb"
	pkgpg "PriceAgent/pkg/postgres"
	"PriceAgent/pkg/retry"
	"PriceAgent/pkg/server"
)

// ProvideLogger builds the root logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("agent_id", cfg.Agent.ID)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStateStore opens the configured backend and ensures its schema.
func ProvideStateStore(cfg *config.Config, l *applogger.Logger) (repository.StateStore, func(), error) {
	var store repository.StateStore
	switch cfg.Store.Type {
	case "postgres":
		pg := cfg.Store.Postgres
		opts := []pkgpg.ClientOption{
			pkgpg.WithHost(pg.Host, pg.Port),
			pkgpg.WithDatabase(pg.Database),
			pkgpg.WithCredentials(pg.User, pg.Password),
			pkgpg.WithSSLMode(pg.SSLMode),
			pkgpg.WithMaxConnections(pg.MaxOpen, pg.MaxIdle),
			pkgpg.WithLogLevel(pg.LogLevel),
		}
		if pg.DSN != "" {
			opts = append(opts, pkgpg.WithDSN(pg.DSN))
		}
		client, err := pkgpg.NewClient(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store = internalrepo.NewPostgresStore(client)
	case "mongo":
		mc := cfg.Store.Mongo
		client, err := pkgmongo.NewClient(
			pkgmongo.WithURI(mc.URI),
			pkgmongo.WithDatabase(mc.Database),
			pkgmongo.WithConnectTimeout(mc.ConnectTimeout),
			pkgmongo.WithPool(mc.MinPool, mc.MaxPool),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo client: %w", err)
		}
		store = internalrepo.NewMongoStore(client)
	case "clickhouse":
		ch := cfg.Store.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host, ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
			pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		chStore := internalrepo.NewClickHouseStore(client)
		chStore.SetLogger(l.Component("clickhouse"))
		store = chStore
	default:
		store = internalrepo.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("%s schema: %w", cfg.Store.Type, err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("state store close error", applogger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideCache returns the in-process cache, layered over Redis when enabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	var c cache.Service
	if cfg.Cache.Redis.Enabled {
		rc := cfg.Cache.Redis
		redisCache, err := cache.NewRedisCache(
			cache.WithRedisAddr(rc.Host, rc.Port),
			cache.WithRedisAuth(rc.Password, rc.DB),
			cache.WithRedisPool(rc.PoolSize, rc.MinIdleConns),
			cache.WithRedisDialTimeout(rc.DialTimeout),
			cache.WithRedisPrefix(rc.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		c = cache.NewLayeredCache(redisCache,
			cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
			cache.WithLayeredL1MaxTTL(rc.L1MaxTTL),
		)
	} else {
		c = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemorySize),
			cache.WithMemoryCleanup(cfg.Cache.LatestPriceTTL),
		)
	}
	cleanup := func() {
		if err := c.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return c, cleanup, nil
}

// ProvideRetryPolicy is shared by remote fetches and state writes.
func ProvideRetryPolicy(cfg *config.Config) *retry.Policy {
	return retry.New(
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithBackoff(cfg.Retry.InitialDelay, cfg.Retry.Multiplier),
		retry.WithMaxDelay(cfg.Retry.MaxDelay),
	)
}

// ProvideErrorSink creates the error_logs writer.
func ProvideErrorSink(store repository.StateStore, m repository.Metrics, l *applogger.Logger) *usecase.ErrorSink {
	sink := usecase.NewErrorSink(store, m)
	sink.SetLogger(l.Component("error_sink"))
	return sink
}

// ProvidePriceSource creates the rate-limited CoinGecko client.
func ProvidePriceSource(cfg *config.Config, l *applogger.Logger) repository.PriceSource {
	httpOpts := []xhttp.ClientOption{xhttp.WithTimeout(cfg.Source.Timeout)}
	if cfg.Source.APIKey != "" {
		httpOpts = append(httpOpts, xhttp.WithHeader("x-cg-demo-api-key", cfg.Source.APIKey))
	}
	c := coingecko.New(cfg.Source.BaseURL,
		coingecko.WithHTTPClient(xhttp.NewClient(httpOpts...)),
		coingecko.WithVsCurrency(cfg.Source.VsCurrency),
		coingecko.WithLimiter(ratelimit.PerMinute(cfg.Source.RatePerMinute)),
	)
	c.SetLogger(l.Component("coingecko"))
	return c
}

// ProvideDataAcquisition creates the series and spot price provider.
func ProvideDataAcquisition(
	cfg *config.Config,
	store repository.StateStore,
	source repository.PriceSource,
	c cache.Service,
	sink *usecase.ErrorSink,
	policy *retry.Policy,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.DataAcquisition {
	d := usecase.NewDataAcquisition(store, source, c, sink,
		usecase.WithRetryPolicy(policy),
		usecase.WithPersistPolicy(policy),
		usecase.WithLatestPriceTTL(cfg.Cache.LatestPriceTTL),
		usecase.WithAcquisitionMetrics(m),
	)
	d.SetLogger(l.Component("data"))
	return d
}

// ProvideModelFactory selects the local gonum model or the remote model server.
func ProvideModelFactory(cfg *config.Config, policy *retry.Policy) service.ModelFactory {
	if cfg.Model.Type == "remote" {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Model.Timeout))
		return model.RemoteFactory(model.NewHTTPServiceBase(cfg.Model.RemoteURL, client, policy))
	}
	return model.LinearFactory(
		model.WithLearningRate(cfg.Model.LearningRate),
		model.WithL2(cfg.Model.L2),
		model.WithSeed(cfg.Pipeline.Seed),
	)
}

// ProvidePipeline creates the sequence pipeline.
func ProvidePipeline(cfg *config.Config, factory service.ModelFactory, store repository.StateStore, sink *usecase.ErrorSink, policy *retry.Policy, l *applogger.Logger) *sequence.Pipeline {
	p := cfg.Pipeline
	pipeline := sequence.New(factory, store,
		sequence.WithConfig(sequence.Config{
			AssetID:         cfg.Agent.AssetID,
			Window:          p.Window,
			Horizon:         p.Horizon,
			Epochs:          p.Epochs,
			BatchSize:       p.BatchSize,
			ValidationSplit: p.ValidationSplit,
			Split:           service.SplitStrategy(p.Split),
			Features:        service.NormalizeFeatureSet(p.Features),
			Seed:            p.Seed,
		}),
		sequence.WithReporter(sink),
		sequence.WithRetryPolicy(policy),
	)
	pipeline.SetLogger(l.Component("pipeline"))
	return pipeline
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.RetryMax),
		pkgkafka.WithAutoCreateTopics(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher announces completed cycles on Kafka when enabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideAgent creates the training scheduler.
func ProvideAgent(
	cfg *config.Config,
	store repository.StateStore,
	data *usecase.DataAcquisition,
	pipeline *sequence.Pipeline,
	sink *usecase.ErrorSink,
	publisher repository.EventPublisher,
	policy *retry.Policy,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Agent {
	a := usecase.NewAgent(store, data, pipeline, sink,
		usecase.WithAgentConfig(usecase.AgentConfig{
			AgentID:          cfg.Agent.ID,
			AssetID:          cfg.Agent.AssetID,
			TrainingInterval: cfg.Agent.TrainingInterval,
			PollInterval:     cfg.Agent.PollInterval,
			LookbackDays:     cfg.Agent.LookbackDays,
		}),
		usecase.WithWritePolicy(policy),
		usecase.WithPublisher(publisher),
		usecase.WithAgentMetrics(m),
	)
	a.SetLogger(l.Component("agent"))
	return a
}

// ProvideReports creates the read-side use case.
func ProvideReports(cfg *config.Config, store repository.StateStore, data *usecase.DataAcquisition) *usecase.ReportsUseCase {
	return usecase.NewReportsUseCase(cfg.Agent.AssetID, store, store, data)
}

// ProvideAgentHandler creates the HTTP handlers.
func ProvideAgentHandler(l *applogger.Logger, agent *usecase.Agent, reports *usecase.ReportsUseCase, store repository.StateStore) *api.AgentEchoHandler {
	return api.NewAgentEchoHandler(l.Component("api"), agent, reports, store)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.AgentEchoHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
	)
}

// ProvideTrainCommandHandler consumes train commands.
func ProvideTrainCommandHandler(cfg *config.Config, agent *usecase.Agent, m repository.Metrics, l *applogger.Logger) *usecase.TrainCommandHandler {
	h := usecase.NewTrainCommandHandler(cfg.Kafka.CommandsTopic, agent, m)
	h.SetLogger(l.Component("commands"))
	return h
}

// ProvideKafkaConsumer creates the command consumer, or nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.StartOffset),
		pkgkafka.WithConsumerFetch(cfg.Kafka.MinBytes, cfg.Kafka.MaxBytes),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l.Component("kafka"))
	return consumer, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	agent *usecase.Agent,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	commands *usecase.TrainCommandHandler,
) *server.App {
	return server.New(cfg, l, agent, httpServer, consumer, commands)
}
