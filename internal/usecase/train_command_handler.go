package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	pkgkafka "PriceAgent/pkg/kafka"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/retry"

	"github.com/go-playground/validator/v10"
)

// Trigger starts a training cycle unless one is in flight.
type Trigger interface {
	TriggerTraining() bool
}

// TrainCommandHandler consumes agent commands and triggers training.
type TrainCommandHandler struct {
	topic    string
	trigger  Trigger
	metrics  domrepo.Metrics
	validate *validator.Validate
	l        *applogger.Logger
}

func NewTrainCommandHandler(topic string, trigger Trigger, metrics domrepo.Metrics) *TrainCommandHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &TrainCommandHandler{
		topic:    topic,
		trigger:  trigger,
		metrics:  metrics,
		validate: validator.New(),
		l:        applogger.Nop(),
	}
}

func (h *TrainCommandHandler) SetLogger(l *applogger.Logger) {
	if l != nil {
		h.l = l
	}
}

func (h *TrainCommandHandler) Topic() string { return h.topic }

// Handle never retries a bad payload; it goes straight to the DLQ.
// incoming message schema: {command, requested_by}
func (h *TrainCommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.AgentCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return retry.Permanent(fmt.Errorf("decode command: %w", err))
	}
	if err := h.validate.StructCtx(ctx, &cmd); err != nil {
		h.metrics.RecordError("command_invalid")
		return retry.Permanent(fmt.Errorf("invalid command: %w", err))
	}

	started := h.trigger.TriggerTraining()
	h.l.Info("train command received",
		applogger.String("requested_by", cmd.RequestedBy),
		applogger.Bool("started", started),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*TrainCommandHandler)(nil)
