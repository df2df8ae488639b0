// Package sequence turns a price series into windowed, normalized datasets,
// drives a SequenceModel through fit and predict, and maps model output back
// to dated price predictions.
package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	"PriceAgent/internal/domain/service"
	"PriceAgent/internal/services/features"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/retry"
	"PriceAgent/pkg/util"

	"github.com/shopspring/decimal"
)

// ModelVersion tags every saved snapshot.
const ModelVersion = "1.0"

// Config holds pipeline shape and training parameters.
type Config struct {
	AssetID         string
	Window          int
	Horizon         int
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Split           service.SplitStrategy
	Features        service.FeatureSet
	Seed            int64
}

// DefaultConfig is a 30-day window forecasting 7 days.
func DefaultConfig() Config {
	return Config{
		AssetID:         "bitcoin",
		Window:          30,
		Horizon:         7,
		Epochs:          50,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Split:           service.SplitTail,
		Features:        service.FeaturesPrice,
		Seed:            42,
	}
}

// Option configures Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithReporter routes load/initialize failures to r.
func WithReporter(r service.ErrorReporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithRetryPolicy retries snapshot writes. The default makes a single attempt.
func WithRetryPolicy(r *retry.Policy) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.retry = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// TrainOutcome summarizes one fit.
type TrainOutcome struct {
	History  []models.EpochMetrics
	Accuracy float64
	Pairs    int
}

// envelope is the persisted form: the model blob plus what inference needs to
// reproduce the training-time scale.
type envelope struct {
	Version  string             `json:"version"`
	Window   int                `json:"window"`
	Horizon  int                `json:"horizon"`
	Features service.FeatureSet `json:"features"`
	Scaler   *Scaler            `json:"scaler,omitempty"`
	Model    []byte             `json:"model"`
}

// Pipeline is safe for concurrent use; calls into the model are serialized.
type Pipeline struct {
	cfg      Config
	factory  service.ModelFactory
	store    domrepo.ModelStore
	reporter service.ErrorReporter
	retry    *retry.Policy
	now      func() time.Time
	l        *applogger.Logger

	mu       sync.Mutex
	model    service.SequenceModel
	scaler   *Scaler
	accuracy float64
}

// New creates a pipeline. factory builds fresh models; store persists them.
func New(factory service.ModelFactory, store domrepo.ModelStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      DefaultConfig(),
		factory:  factory,
		store:    store,
		reporter: service.NopReporter{},
		retry:    retry.New(retry.WithMaxAttempts(1)),
		now:      time.Now,
		l:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if !service.IsValidFeatureSet(p.cfg.Features) {
		p.cfg.Features = service.FeaturesPrice
	}
	return p
}

// SetLogger injects a structured logger.
func (p *Pipeline) SetLogger(l *applogger.Logger) {
	if l != nil {
		p.l = l
	}
}

// Config returns the active config.
func (p *Pipeline) Config() Config { return p.cfg }

// Accuracy returns the accuracy of the last fit or loaded snapshot.
func (p *Pipeline) Accuracy() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accuracy
}

// Initialize loads the latest saved model, falling back to a fresh one.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initializeLocked(ctx)
}

func (p *Pipeline) initializeLocked(ctx context.Context) error {
	loaded, err := p.loadLocked(ctx)
	if err != nil {
		p.reporter.Report(ctx, "load_model", err)
	}
	if loaded {
		return nil
	}

	m := p.factory()
	if err := m.Initialize(ctx, p.cfg.Window, p.cfg.Horizon, p.cfg.Features.Width()); err != nil {
		err = failure.ModelError("initialize", err)
		p.reporter.Report(ctx, "initialize", err)
		return err
	}
	p.model = m
	p.scaler = nil
	p.accuracy = 0
	p.l.Info("created new model",
		applogger.Int("window", p.cfg.Window),
		applogger.Int("horizon", p.cfg.Horizon),
		applogger.String("features", string(p.cfg.Features)),
	)
	return nil
}

// LoadModel restores the latest snapshot. It reports false when none exists.
func (p *Pipeline) LoadModel(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked(ctx)
}

func (p *Pipeline) loadLocked(ctx context.Context) (bool, error) {
	snap, err := p.store.LatestModel(ctx, p.cfg.AssetID)
	if errors.Is(err, domrepo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, failure.PersistenceError("load_model", err)
	}

	var env envelope
	if err := json.Unmarshal(snap.ModelData, &env); err != nil {
		return false, failure.ModelError("load_model", fmt.Errorf("decode snapshot: %w", err))
	}
	if env.Window != p.cfg.Window || env.Horizon != p.cfg.Horizon || env.Features != p.cfg.Features {
		return false, failure.ModelError("load_model", fmt.Errorf(
			"snapshot shape %d/%d/%s does not match %d/%d/%s",
			env.Window, env.Horizon, env.Features, p.cfg.Window, p.cfg.Horizon, p.cfg.Features))
	}

	m := p.factory()
	if err := m.Deserialize(env.Model); err != nil {
		return false, failure.ModelError("load_model", err)
	}
	p.model = m
	p.scaler = env.Scaler
	p.accuracy = snap.Accuracy
	p.l.Info("model loaded",
		applogger.String("version", snap.Version),
		applogger.Float64("accuracy", snap.Accuracy),
		applogger.Time("updated_at", snap.UpdatedAt),
	)
	return true, nil
}

// Dataset builds the normalized dataset for a series and the scaler used.
func (p *Pipeline) Dataset(prices []float64) (service.Dataset, Scaler, error) {
	scaler := FitScaler(prices)
	rows := scaler.NormalizeRows(features.Vectors(prices, p.cfg.Features), features.PriceScaledColumns(p.cfg.Features))
	inputs, targets, err := Windows(rows, scaler.NormalizeSeries(prices), p.cfg.Window, p.cfg.Horizon)
	if err != nil {
		return service.Dataset{}, scaler, err
	}
	return service.Dataset{Inputs: inputs, Targets: targets}, scaler, nil
}

// Train fits the model on the full series.
func (p *Pipeline) Train(ctx context.Context, points []models.PricePoint) (TrainOutcome, error) {
	if need := MinSeriesLength(p.cfg.Window, p.cfg.Horizon); len(points) < need {
		return TrainOutcome{}, failure.ModelError("train", fmt.Errorf("need at least %d points, got %d", need, len(points)))
	}

	ds, scaler, err := p.Dataset(models.Prices(points))
	if err != nil {
		return TrainOutcome{}, failure.ModelError("train", err)
	}
	train, val := Split(ds, p.cfg.ValidationSplit, p.cfg.Split, p.cfg.Seed)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		if err := p.initializeLocked(ctx); err != nil {
			return TrainOutcome{}, err
		}
	}

	start := p.now()
	res, err := p.model.Fit(ctx, train, val, p.cfg.Epochs, p.cfg.BatchSize)
	if err != nil {
		// The next cycle starts from the saved snapshot or a fresh model.
		p.model = nil
		p.scaler = nil
		p.l.Warn("fit failed, model discarded", applogger.Error(err))
		return TrainOutcome{}, failure.ModelError("fit", err)
	}
	p.scaler = &scaler
	p.accuracy = res.Accuracy

	p.l.Info("model trained",
		applogger.Int("pairs", ds.Len()),
		applogger.Int("train", train.Len()),
		applogger.Int("validation", val.Len()),
		applogger.Float64("accuracy", res.Accuracy),
		applogger.Duration("took", p.now().Sub(start)),
	)
	return TrainOutcome{History: res.History, Accuracy: res.Accuracy, Pairs: ds.Len()}, nil
}

// Predict forecasts the next H days after the last point.
func (p *Pipeline) Predict(ctx context.Context, points []models.PricePoint) ([]models.Prediction, error) {
	if len(points) < p.cfg.Window {
		return nil, failure.ModelError("predict", fmt.Errorf("need at least %d points, got %d", p.cfg.Window, len(points)))
	}
	prices := models.Prices(points)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil, failure.ModelError("predict", fmt.Errorf("model not initialized"))
	}

	scaler := FitScaler(prices)
	if p.scaler != nil {
		scaler = *p.scaler
	}
	rows := features.Vectors(prices, p.cfg.Features)
	window := scaler.NormalizeRows(rows[len(rows)-p.cfg.Window:], features.PriceScaledColumns(p.cfg.Features))

	out, err := p.model.Predict(ctx, window)
	if err != nil {
		return nil, failure.ModelError("predict", err)
	}
	if len(out) != p.cfg.Horizon {
		return nil, failure.ModelError("predict", fmt.Errorf("model returned %d values, want %d", len(out), p.cfg.Horizon))
	}

	dates := util.NextDays(points[len(points)-1].Timestamp, p.cfg.Horizon)
	preds := make([]models.Prediction, len(out))
	for i, v := range out {
		preds[i] = models.Prediction{
			Date:  dates[i],
			Price: decimal.NewFromFloat(scaler.Denormalize(v)).Round(2),
		}
	}
	return preds, nil
}

// SaveModel persists the current model with its accuracy and scale.
func (p *Pipeline) SaveModel(ctx context.Context) error {
	p.mu.Lock()
	if p.model == nil {
		p.mu.Unlock()
		return failure.ModelError("save_model", fmt.Errorf("model not initialized"))
	}
	blob, err := p.model.Serialize()
	env := envelope{
		Version:  ModelVersion,
		Window:   p.cfg.Window,
		Horizon:  p.cfg.Horizon,
		Features: p.cfg.Features,
		Scaler:   p.scaler,
		Model:    blob,
	}
	accuracy := p.accuracy
	p.mu.Unlock()
	if err != nil {
		return failure.ModelError("save_model", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return failure.ModelError("save_model", err)
	}
	snap := models.ModelSnapshot{
		AssetID:   p.cfg.AssetID,
		ModelData: data,
		Accuracy:  accuracy,
		Version:   ModelVersion,
		UpdatedAt: p.now().UTC(),
	}
	err = p.retry.Do(ctx, func(ctx context.Context, _ int) error {
		return p.store.SaveModel(ctx, snap)
	})
	if err != nil {
		return failure.PersistenceError("save_model", err)
	}
	return nil
}
