package service

import (
	"context"

	"PriceAgent/internal/domain/models"
)

// Dataset holds normalized windows. Inputs[i] has W rows of F features,
// Targets[i] has H values.
type Dataset struct {
	Inputs  [][][]float64
	Targets [][]float64
}

// Len returns the number of pairs.
func (d Dataset) Len() int { return len(d.Inputs) }

// FitResult is what a model reports after training.
type FitResult struct {
	History  []models.EpochMetrics
	Accuracy float64 // percent, 0..100
}

// SequenceModel is the pluggable forecasting capability.
type SequenceModel interface {
	Initialize(ctx context.Context, window, horizon, features int) error
	Fit(ctx context.Context, train, validation Dataset, epochs, batchSize int) (FitResult, error)
	// Predict takes W rows of F normalized features and returns H normalized outputs.
	Predict(ctx context.Context, window [][]float64) ([]float64, error)
	Serialize() ([]byte, error)
	Deserialize(blob []byte) error
}

// ModelFactory builds a fresh, uninitialized model.
type ModelFactory func() SequenceModel
