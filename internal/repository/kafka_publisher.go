package repository

import (
	"context"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	pkgkafka "PriceAgent/pkg/kafka"
)

// KafkaPublisher announces training events on a Kafka topic keyed by agent id.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishTrainingCompleted(ctx context.Context, r models.TrainingResult, s models.AgentState) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.AgentID), models.TrainingCompletedEvent{
		Event:         models.EventTrainingCompleted,
		ResultID:      r.ID,
		AgentID:       r.AgentID,
		AssetID:       r.AssetID,
		Accuracy:      r.Accuracy,
		TrainingCount: s.TrainingCount,
		Predictions:   r.Predictions,
		Timestamp:     r.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops every event; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishTrainingCompleted(context.Context, models.TrainingResult, models.AgentState) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
