package repository

import (
	"context"
	"errors"
	"time"

	"PriceAgent/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by keyed reads when no record exists.
var ErrNotFound = errors.New("record not found")

// AgentStateStore holds the agent_state collection keyed by agent_id.
type AgentStateStore interface {
	GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error)
	InsertAgentState(ctx context.Context, s models.AgentState) error
	UpsertAgentState(ctx context.Context, s models.AgentState) error
}

// TrainingResultStore holds the append-only training_results collection.
type TrainingResultStore interface {
	AppendTrainingResult(ctx context.Context, r models.TrainingResult) error
	// ListTrainingResults returns newest first.
	ListTrainingResults(ctx context.Context, limit int) ([]models.TrainingResult, error)
}

// PriceHistoryStore holds the historical_data collection.
type PriceHistoryStore interface {
	// ListPricePoints returns the cached series ordered by timestamp ascending.
	ListPricePoints(ctx context.Context, assetID string) ([]models.PricePoint, error)
	AppendPricePoints(ctx context.Context, assetID string, points []models.PricePoint) error
}

// ModelStore holds the append-only models collection; latest update wins.
type ModelStore interface {
	SaveModel(ctx context.Context, m models.ModelSnapshot) error
	LatestModel(ctx context.Context, assetID string) (*models.ModelSnapshot, error)
}

// ErrorLogStore holds the append-only error_logs collection.
type ErrorLogStore interface {
	AppendErrorLog(ctx context.Context, e models.ErrorLogEntry) error
	// ListErrorLogs returns newest first.
	ListErrorLogs(ctx context.Context, limit int) ([]models.ErrorLogEntry, error)
}

// StateStore is the full external state store.
type StateStore interface {
	AgentStateStore
	TrainingResultStore
	PriceHistoryStore
	ModelStore
	ErrorLogStore
	Init(ctx context.Context) error // ensure tables/collections/indexes
	Health(ctx context.Context) error
	Close() error
}

// PriceSource is the remote, rate-limited price provider.
type PriceSource interface {
	MarketChart(ctx context.Context, assetID string, days int) ([]models.PricePoint, error)
	SimplePrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// EventPublisher announces agent lifecycle events.
type EventPublisher interface {
	PublishTrainingCompleted(ctx context.Context, r models.TrainingResult, s models.AgentState) error
	Close() error
}

// Metrics records agent level measurements.
type Metrics interface {
	RecordCycle(result string, seconds float64)
	RecordFetch(source, result string)
	RecordAccuracy(accuracy float64)
	RecordTrainingCount(count int)
	RecordLastPrice(asset string, price float64)
	RecordError(context string)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) RecordCycle(string, float64) {}
func (NopMetrics) RecordFetch(string, string) {}
func (NopMetrics) RecordAccuracy(float64) {}
func (NopMetrics) RecordTrainingCount(int) {}
func (NopMetrics) RecordLastPrice(string, float64) {}
func (NopMetrics) RecordError(string) {}

// Clock lets tests control time.
type Clock func() time.Time
