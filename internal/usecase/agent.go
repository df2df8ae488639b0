package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	"PriceAgent/internal/domain/service"
	"PriceAgent/internal/services/sequence"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/retry"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

// Scheduler states.
const (
	StateIdle int32 = iota
	StateTraining
)

var (
	// ErrAlreadyTraining is returned when a cycle is already in flight.
	ErrAlreadyTraining = errors.New("training already in progress")
	// ErrStopped is returned once Stop has run.
	ErrStopped = errors.New("agent stopped")
	// ErrNoData means the cycle was skipped because no series was available.
	ErrNoData = errors.New("no historical data available")
)

// SeriesFetcher supplies the training series.
type SeriesFetcher interface {
	FetchHistoricalSeries(ctx context.Context, assetID string, lookbackDays int) []models.PricePoint
}

// ForecastPipeline trains, persists and runs the forecasting model.
type ForecastPipeline interface {
	Initialize(ctx context.Context) error
	Train(ctx context.Context, points []models.PricePoint) (sequence.TrainOutcome, error)
	Predict(ctx context.Context, points []models.PricePoint) ([]models.Prediction, error)
	SaveModel(ctx context.Context) error
	Accuracy() float64
}

// AgentStore is the part of the state store the agent writes.
type AgentStore interface {
	domrepo.AgentStateStore
	domrepo.TrainingResultStore
}

// AgentConfig holds scheduler settings.
type AgentConfig struct {
	AgentID          string
	AssetID          string
	TrainingInterval time.Duration
	PollInterval     time.Duration
	LookbackDays     int
}

// DefaultAgentConfig retrains bitcoin every 6 hours, checking every 5 minutes.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		AgentID:          "bitcoin_predictor",
		AssetID:          "bitcoin",
		TrainingInterval: 6 * time.Hour,
		PollInterval:     5 * time.Minute,
		LookbackDays:     730,
	}
}

// AgentOption configures Agent.
type AgentOption func(*Agent)

// WithAgentConfig replaces the default config.
func WithAgentConfig(cfg AgentConfig) AgentOption {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

// WithWritePolicy sets the retry policy for AgentState and TrainingResult writes.
func WithWritePolicy(p *retry.Policy) AgentOption {
	return func(a *Agent) {
		if p != nil {
			a.writes = p
		}
	}
}

// WithPublisher announces completed cycles.
func WithPublisher(p domrepo.EventPublisher) AgentOption {
	return func(a *Agent) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithAgentMetrics sets the metrics recorder.
func WithAgentMetrics(m domrepo.Metrics) AgentOption {
	return func(a *Agent) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithAgentClock overrides time.Now.
func WithAgentClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		a.now = now
	}
}

// Agent is the autonomous training scheduler. One instance per process.
// The Idle to Training transition is a single compare-and-swap, so the timer
// and manual triggers cannot both enter a cycle.
type Agent struct {
	cfg       AgentConfig
	store     AgentStore
	data      SeriesFetcher
	pipeline  ForecastPipeline
	reporter  service.ErrorReporter
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	writes    *retry.Policy
	now       func() time.Time
	l         *applogger.Logger

	state    atomic.Int32
	snapshot atomic.Pointer[models.AgentState]
	inflight sync.WaitGroup

	mu      sync.Mutex
	sched   *gocron.Scheduler
	baseCtx context.Context

	// gate orders inflight.Add against Stop so Wait never races a new cycle.
	gate    sync.Mutex
	stopped bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan models.AgentStatus
}

// NewAgent creates the scheduler.
func NewAgent(store AgentStore, data SeriesFetcher, pipeline ForecastPipeline, reporter service.ErrorReporter, opts ...AgentOption) *Agent {
	if reporter == nil {
		reporter = service.NopReporter{}
	}
	a := &Agent{
		cfg:       DefaultAgentConfig(),
		store:     store,
		data:      data,
		pipeline:  pipeline,
		reporter:  reporter,
		publisher: nopPublisher{},
		metrics:   domrepo.NopMetrics{},
		writes:    retry.New(),
		now:       time.Now,
		l:         applogger.Nop(),
		baseCtx:   context.Background(),
		subs:      make(map[int]chan models.AgentStatus),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetLogger injects a structured logger.
func (a *Agent) SetLogger(l *applogger.Logger) {
	if l != nil {
		a.l = l
	}
}

// Config returns the agent config.
func (a *Agent) Config() AgentConfig { return a.cfg }

// IsTraining reports whether a cycle is in flight.
func (a *Agent) IsTraining() bool {
	return a.state.Load() == StateTraining
}

// EnsureState inserts the zero AgentState when none exists and caches it.
func (a *Agent) EnsureState(ctx context.Context) error {
	err := a.writes.Do(ctx, func(ctx context.Context, _ int) error {
		return a.store.InsertAgentState(ctx, models.NewAgentState(a.cfg.AgentID, a.now().UTC()))
	})
	if err != nil {
		return failure.PersistenceError("insert_agent_state", err)
	}
	st, err := a.store.GetAgentState(ctx, a.cfg.AgentID)
	if err != nil {
		return failure.PersistenceError("get_agent_state", err)
	}
	a.snapshot.Store(st)
	return nil
}

// Start ensures the state row, initializes the model and schedules the
// interval check. The first check runs immediately.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched != nil {
		return fmt.Errorf("agent already started")
	}
	a.gate.Lock()
	a.stopped = false
	a.gate.Unlock()
	a.baseCtx = context.WithoutCancel(ctx)

	if err := a.EnsureState(ctx); err != nil {
		a.reporter.Report(ctx, "initialize", err)
	}
	if err := a.pipeline.Initialize(ctx); err != nil {
		a.l.Warn("model initialization failed, will retry on first cycle", applogger.Error(err))
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(a.cfg.PollInterval).Do(func() { a.Tick(a.baseCtx) }); err != nil {
		return fmt.Errorf("schedule training check: %w", err)
	}
	s.StartAsync()
	a.sched = s

	a.l.Info("agent started",
		applogger.String("agent_id", a.cfg.AgentID),
		applogger.String("asset", a.cfg.AssetID),
		applogger.Duration("interval", a.cfg.TrainingInterval),
		applogger.Duration("poll", a.cfg.PollInterval),
	)
	return nil
}

// Stop cancels the polling timer and refuses new cycles. An in-flight cycle
// keeps running; use Wait.
func (a *Agent) Stop() {
	a.gate.Lock()
	a.stopped = true
	a.gate.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched == nil {
		return
	}
	a.sched.Stop()
	a.sched = nil
	a.l.Info("agent stopped")
}

// Wait blocks until the in-flight cycle finishes or ctx is done.
func (a *Agent) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for training: %w", ctx.Err())
	}
}

// ShouldTrain is true on first run or once the interval has elapsed since the
// last training, and always false while a cycle is in flight.
func (a *Agent) ShouldTrain(ctx context.Context) bool {
	if a.IsTraining() {
		return false
	}
	st, err := a.store.GetAgentState(ctx, a.cfg.AgentID)
	if errors.Is(err, domrepo.ErrNotFound) {
		return true
	}
	if err != nil {
		a.reporter.Report(ctx, "check_training", failure.PersistenceError("get_agent_state", err))
		return false
	}
	if st.LastTrainingTime == nil {
		return true
	}
	return a.now().Sub(*st.LastTrainingTime) >= a.cfg.TrainingInterval
}

// Tick is the timer callback.
func (a *Agent) Tick(ctx context.Context) {
	if !a.ShouldTrain(ctx) {
		return
	}
	a.TriggerTraining()
}

// TriggerTraining starts a cycle in the background, bypassing the interval
// gate. It returns false when a cycle is already in flight or the agent is
// stopped.
func (a *Agent) TriggerTraining() bool {
	if a.acquire() != nil {
		return false
	}
	go func() {
		defer a.inflight.Done()
		defer a.release()
		_ = a.runCycle(a.baseCtx)
	}()
	return true
}

// TrainNow runs a cycle on the calling goroutine. It returns
// ErrAlreadyTraining when another cycle holds the guard and ErrStopped after
// Stop.
func (a *Agent) TrainNow(ctx context.Context) error {
	if err := a.acquire(); err != nil {
		return err
	}
	defer a.inflight.Done()
	defer a.release()
	return a.runCycle(ctx)
}

// acquire takes the single-flight guard and registers the cycle with inflight.
func (a *Agent) acquire() error {
	a.gate.Lock()
	if a.stopped {
		a.gate.Unlock()
		return ErrStopped
	}
	if !a.state.CompareAndSwap(StateIdle, StateTraining) {
		a.gate.Unlock()
		return ErrAlreadyTraining
	}
	a.inflight.Add(1)
	a.gate.Unlock()
	a.notify()
	return nil
}

func (a *Agent) release() {
	a.state.Store(StateIdle)
	a.notify()
}

// runCycle is fetch, train, save, predict, then results and state. State is
// written last so a failed step leaves it untouched.
func (a *Agent) runCycle(ctx context.Context) error {
	start := a.now()
	cycleID := uuid.NewString()
	l := a.l.With(applogger.String("cycle_id", cycleID))
	l.Info("training cycle started")

	err := a.cycle(ctx, cycleID, l)
	elapsed := a.now().Sub(start)
	switch {
	case err == nil:
		a.metrics.RecordCycle("ok", elapsed.Seconds())
		l.Info("training cycle finished", applogger.Duration("took", elapsed))
	case errors.Is(err, ErrNoData):
		a.metrics.RecordCycle("skipped", elapsed.Seconds())
		l.Warn("training cycle skipped", applogger.Error(err))
	default:
		a.metrics.RecordCycle("failed", elapsed.Seconds())
		l.Error("training cycle failed", applogger.Duration("took", elapsed), applogger.Error(err))
	}
	return err
}

func (a *Agent) cycle(ctx context.Context, cycleID string, l *applogger.Logger) error {
	points := a.data.FetchHistoricalSeries(ctx, a.cfg.AssetID, a.cfg.LookbackDays)
	if len(points) == 0 {
		return ErrNoData
	}

	outcome, err := a.pipeline.Train(ctx, points)
	if err != nil {
		a.reporter.Report(ctx, "training", err)
		return err
	}

	if err := a.pipeline.SaveModel(ctx); err != nil {
		a.reporter.Report(ctx, "save_model", err)
	}

	predictions, err := a.pipeline.Predict(ctx, points)
	if err != nil {
		a.reporter.Report(ctx, "training", err)
		return err
	}

	current, err := a.currentState(ctx)
	if err != nil {
		a.reporter.Report(ctx, "persist_state", err)
		return err
	}

	now := a.now().UTC()
	result := models.TrainingResult{
		ID:          cycleID,
		AgentID:     a.cfg.AgentID,
		AssetID:     a.cfg.AssetID,
		Accuracy:    outcome.Accuracy,
		Predictions: predictions,
		History:     outcome.History,
		Timestamp:   now,
	}
	err = a.writes.Do(ctx, func(ctx context.Context, _ int) error {
		return a.store.AppendTrainingResult(ctx, result)
	})
	if err != nil {
		err = failure.PersistenceError("append_training_result", err)
		a.reporter.Report(ctx, "persist_results", err)
		return err
	}

	next := current
	next.TrainingCount++
	next.LastTrainingTime = &now
	next.Accuracy = outcome.Accuracy
	next.UpdatedAt = now
	err = a.writes.Do(ctx, func(ctx context.Context, _ int) error {
		return a.store.UpsertAgentState(ctx, next)
	})
	if err != nil {
		err = failure.PersistenceError("upsert_agent_state", err)
		a.reporter.Report(ctx, "persist_state", err)
		return err
	}
	a.snapshot.Store(&next)

	a.metrics.RecordAccuracy(next.Accuracy)
	a.metrics.RecordTrainingCount(next.TrainingCount)
	l.Info("training results stored",
		applogger.Int("training_count", next.TrainingCount),
		applogger.Float64("accuracy", next.Accuracy),
		applogger.Int("predictions", len(predictions)),
	)

	if err := a.publisher.PublishTrainingCompleted(ctx, result, next); err != nil {
		l.Warn("publish training completed failed", applogger.Error(err))
	}
	return nil
}

func (a *Agent) currentState(ctx context.Context) (models.AgentState, error) {
	var st *models.AgentState
	err := a.writes.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		st, err = a.store.GetAgentState(ctx, a.cfg.AgentID)
		if errors.Is(err, domrepo.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if errors.Is(err, domrepo.ErrNotFound) {
		return models.NewAgentState(a.cfg.AgentID, a.now().UTC()), nil
	}
	if err != nil {
		return models.AgentState{}, failure.PersistenceError("get_agent_state", err)
	}
	return *st, nil
}

// Status returns the last persisted AgentState and the in-flight flag. When
// the store is unreachable the last in-process snapshot is served instead.
func (a *Agent) Status(ctx context.Context) models.AgentStatus {
	training := a.IsTraining()
	st, err := a.store.GetAgentState(ctx, a.cfg.AgentID)
	if err == nil {
		return models.AgentStatus{State: *st, Training: training}
	}
	if !errors.Is(err, domrepo.ErrNotFound) {
		a.l.Warn("status read failed, serving snapshot", applogger.Error(err))
	}
	return models.AgentStatus{State: a.cachedState(), Training: training}
}

func (a *Agent) cachedState() models.AgentState {
	if st := a.snapshot.Load(); st != nil {
		return *st
	}
	return models.NewAgentState(a.cfg.AgentID, time.Time{})
}

// Subscribe streams status changes. The returned func unsubscribes. Slow
// subscribers miss updates rather than block the scheduler.
func (a *Agent) Subscribe() (<-chan models.AgentStatus, func()) {
	ch := make(chan models.AgentStatus, 4)
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	return ch, func() {
		a.subMu.Lock()
		if c, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(c)
		}
		a.subMu.Unlock()
	}
}

func (a *Agent) notify() {
	status := models.AgentStatus{State: a.cachedState(), Training: a.IsTraining()}
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishTrainingCompleted(context.Context, models.TrainingResult, models.AgentState) error {
	return nil
}

func (nopPublisher) Close() error { return nil }
