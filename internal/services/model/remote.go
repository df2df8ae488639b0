package model

import (
	"context"
	"fmt"

	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/domain/service"
)

// Remote delegates fit and predict to an external model server. The server
// is stateless: every call carries the opaque model blob and returns the
// updated one.
type Remote struct {
	base  *HTTPServiceBase
	state []byte
}

// NewRemote creates a client for the server behind base.
func NewRemote(base *HTTPServiceBase) *Remote {
	return &Remote{base: base}
}

// RemoteFactory adapts NewRemote to service.ModelFactory.
func RemoteFactory(base *HTTPServiceBase) service.ModelFactory {
	return func() service.SequenceModel { return NewRemote(base) }
}

var _ service.SequenceModel = (*Remote)(nil)

type initRequest struct {
	Window   int `json:"window"`
	Horizon  int `json:"horizon"`
	Features int `json:"features"`
}

type modelResponse struct {
	Model []byte `json:"model"`
}

type fitRequest struct {
	Model      []byte      `json:"model"`
	Train      datasetWire `json:"train"`
	Validation datasetWire `json:"validation"`
	Epochs     int         `json:"epochs"`
	BatchSize  int         `json:"batch_size"`
}

type datasetWire struct {
	Inputs  [][][]float64 `json:"inputs"`
	Targets [][]float64   `json:"targets"`
}

type fitResponse struct {
	Model    []byte                `json:"model"`
	History  []models.EpochMetrics `json:"history"`
	Accuracy float64               `json:"accuracy"`
}

type predictRequest struct {
	Model  []byte      `json:"model"`
	Window [][]float64 `json:"window"`
}

type predictResponse struct {
	Outputs []float64 `json:"outputs"`
}

func (r *Remote) Initialize(ctx context.Context, window, horizon, features int) error {
	var resp modelResponse
	if err := r.base.PostJSON(ctx, "/init", initRequest{Window: window, Horizon: horizon, Features: features}, &resp); err != nil {
		return err
	}
	if len(resp.Model) == 0 {
		return fmt.Errorf("model server returned empty model")
	}
	r.state = resp.Model
	return nil
}

func (r *Remote) Fit(ctx context.Context, train, validation service.Dataset, epochs, batchSize int) (service.FitResult, error) {
	if len(r.state) == 0 {
		return service.FitResult{}, fmt.Errorf("model not initialized")
	}
	var resp fitResponse
	err := r.base.PostJSON(ctx, "/fit", fitRequest{
		Model:      r.state,
		Train:      datasetWire{Inputs: train.Inputs, Targets: train.Targets},
		Validation: datasetWire{Inputs: validation.Inputs, Targets: validation.Targets},
		Epochs:     epochs,
		BatchSize:  batchSize,
	}, &resp)
	if err != nil {
		return service.FitResult{}, err
	}
	if len(resp.Model) > 0 {
		r.state = resp.Model
	}
	return service.FitResult{History: resp.History, Accuracy: accuracyFromServer(resp.Accuracy)}, nil
}

func accuracyFromServer(a float64) float64 {
	if a < 0 {
		return 0
	}
	if a > 100 {
		return 100
	}
	return a
}

func (r *Remote) Predict(ctx context.Context, window [][]float64) ([]float64, error) {
	if len(r.state) == 0 {
		return nil, fmt.Errorf("model not initialized")
	}
	var resp predictResponse
	if err := r.base.PostJSON(ctx, "/predict", predictRequest{Model: r.state, Window: window}, &resp); err != nil {
		return nil, err
	}
	return resp.Outputs, nil
}

func (r *Remote) Serialize() ([]byte, error) {
	if len(r.state) == 0 {
		return nil, fmt.Errorf("model not initialized")
	}
	return append([]byte(nil), r.state...), nil
}

func (r *Remote) Deserialize(blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("empty model blob")
	}
	r.state = append([]byte(nil), blob...)
	return nil
}
