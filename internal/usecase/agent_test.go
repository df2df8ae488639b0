package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/domain/service"
	"PriceAgent/internal/repository"
	"PriceAgent/internal/service/coingecko"
	"PriceAgent/internal/services/model"
	"PriceAgent/internal/services/sequence"
	"PriceAgent/pkg/cache"

	"github.com/shopspring/decimal"
)

type staticFetcher struct {
	points []models.PricePoint
}

func (f staticFetcher) FetchHistoricalSeries(context.Context, string, int) []models.PricePoint {
	return f.points
}

func dailySeries(n int) []models.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PricePoint, n)
	for i := range out {
		p := 40000 + 1500*math.Sin(float64(i)/6) + 25*float64(i)
		out[i] = models.PricePoint{Timestamp: start.AddDate(0, 0, i), Price: decimal.NewFromFloat(p).Round(2)}
	}
	return out
}

func testPipeline(store *repository.MemoryStore) *sequence.Pipeline {
	cfg := sequence.DefaultConfig()
	cfg.Epochs = 3
	return sequence.New(model.LinearFactory(), store, sequence.WithConfig(cfg))
}

func newTestAgent(store AgentStore, fetcher SeriesFetcher, pipeline ForecastPipeline, reporter service.ErrorReporter, now func() time.Time) *Agent {
	return NewAgent(store, fetcher, pipeline, reporter,
		WithWritePolicy(fastPolicy()),
		WithAgentClock(now),
	)
}

func TestAgentTrainingCycle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	points := dailySeries(90)
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	a := newTestAgent(store, staticFetcher{points: points}, testPipeline(store), sink, func() time.Time { return now })

	if err := a.EnsureState(ctx); err != nil {
		t.Fatalf("ensure state: %v", err)
	}
	st, _ := store.GetAgentState(ctx, "bitcoin_predictor")
	if st.TrainingCount != 0 || st.LastTrainingTime != nil {
		t.Fatalf("unexpected initial state %+v", st)
	}

	if err := a.TrainNow(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	st, _ = store.GetAgentState(ctx, "bitcoin_predictor")
	if st.TrainingCount != 1 {
		t.Fatalf("expected training_count 1, got %d", st.TrainingCount)
	}
	if st.LastTrainingTime == nil || !st.LastTrainingTime.Equal(now) {
		t.Fatalf("unexpected last_training_time %v", st.LastTrainingTime)
	}
	if st.Accuracy < 0 || st.Accuracy > 100 {
		t.Fatalf("accuracy out of range: %v", st.Accuracy)
	}

	results, _ := store.ListTrainingResults(ctx, 10)
	if len(results) != 1 {
		t.Fatalf("expected one training result, got %d", len(results))
	}
	preds := results[0].Predictions
	if len(preds) != 7 {
		t.Fatalf("expected 7 predictions, got %d", len(preds))
	}
	last := points[len(points)-1].Timestamp
	for i, p := range preds {
		want := last.AddDate(0, 0, i+1)
		if !p.Date.Equal(want) {
			t.Fatalf("prediction %d dated %v, want %v", i, p.Date, want)
		}
	}
	if results[0].Accuracy != st.Accuracy {
		t.Fatalf("result and state accuracy differ")
	}

	if _, err := store.LatestModel(ctx, "bitcoin"); err != nil {
		t.Fatalf("model not saved: %v", err)
	}
	if logs, _ := store.ListErrorLogs(ctx, 10); len(logs) != 0 {
		t.Fatalf("unexpected error logs %+v", logs)
	}
	if a.IsTraining() {
		t.Fatalf("guard not released")
	}
}

func TestAgentStartTrainsFromRemoteSeries(t *testing.T) {
	var chartHits int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/bitcoin/market_chart":
			mu.Lock()
			chartHits++
			mu.Unlock()
			prices := make([][]float64, 0, 90)
			for _, p := range dailySeries(90) {
				f, _ := p.Price.Float64()
				prices = append(prices, []float64{float64(p.Timestamp.UnixMilli()), f})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"prices": prices})
		case "/simple/price":
			_, _ = w.Write([]byte(`{"bitcoin":{"usd":43000.5}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	data := NewDataAcquisition(store, coingecko.New(srv.URL), cache.NewMemoryCache(), sink, WithRetryPolicy(fastPolicy()))
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	cfg := DefaultAgentConfig()
	cfg.PollInterval = time.Hour
	a := NewAgent(store, data, testPipeline(store), sink,
		WithAgentConfig(cfg),
		WithWritePolicy(fastPolicy()),
		WithAgentClock(func() time.Time { return now }),
	)
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var st *models.AgentState
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetAgentState(ctx, cfg.AgentID)
		if err == nil && got.TrainingCount == 1 && !a.IsTraining() {
			st = got
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	a.Stop()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st == nil {
		t.Fatalf("first check did not train from the remote series")
	}

	mu.Lock()
	hits := chartHits
	mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected one market_chart call, got %d", hits)
	}
	if cached, _ := store.ListPricePoints(ctx, "bitcoin"); len(cached) != 90 {
		t.Fatalf("expected 90 cached points, got %d", len(cached))
	}

	results, _ := store.ListTrainingResults(ctx, 10)
	if len(results) != 1 || len(results[0].Predictions) != 7 {
		t.Fatalf("expected one result with 7 predictions, got %+v", results)
	}
	first := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	for i, p := range results[0].Predictions {
		if want := first.AddDate(0, 0, i); !p.Date.Equal(want) {
			t.Fatalf("prediction %d dated %v, want %v", i, p.Date, want)
		}
	}
	if a.ShouldTrain(ctx) {
		t.Fatalf("should not train again right after a cycle")
	}
}

func TestAgentRejectsCyclesAfterStop(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	a := newTestAgent(store, staticFetcher{points: dailySeries(90)}, testPipeline(store), nil, time.Now)
	_ = a.EnsureState(ctx)

	a.Stop()
	if a.TriggerTraining() {
		t.Fatalf("trigger must be refused after stop")
	}
	if err := a.TrainNow(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if a.IsTraining() {
		t.Fatalf("guard taken by a refused cycle")
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := a.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st, _ := store.GetAgentState(ctx, "bitcoin_predictor"); st.TrainingCount != 0 {
		t.Fatalf("no cycle expected after stop, got training_count %d", st.TrainingCount)
	}
}

func TestAgentRemoteFailureLeavesStateUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	data := NewDataAcquisition(store, coingecko.New(srv.URL), cache.NewMemoryCache(), sink, WithRetryPolicy(fastPolicy()))
	a := newTestAgent(store, data, testPipeline(store), sink, time.Now)

	if err := a.EnsureState(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := store.GetAgentState(ctx, "bitcoin_predictor")

	if err := a.TrainNow(ctx); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	after, _ := store.GetAgentState(ctx, "bitcoin_predictor")
	if *after != *before {
		t.Fatalf("agent state changed: %+v -> %+v", before, after)
	}
	if results, _ := store.ListTrainingResults(ctx, 10); len(results) != 0 {
		t.Fatalf("no result expected, got %d", len(results))
	}
	logs, _ := store.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "historical_data_fetch" {
		t.Fatalf("expected historical_data_fetch entry, got %+v", logs)
	}
}

func TestAgentShortSeriesReportsTraining(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	a := newTestAgent(store, staticFetcher{points: dailySeries(20)}, testPipeline(store), sink, time.Now)
	_ = a.EnsureState(ctx)

	if err := a.TrainNow(ctx); err == nil {
		t.Fatalf("expected training error")
	}
	st, _ := store.GetAgentState(ctx, "bitcoin_predictor")
	if st.TrainingCount != 0 {
		t.Fatalf("state must not advance on failure")
	}
	logs, _ := store.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "training" {
		t.Fatalf("expected training entry, got %+v", logs)
	}
}

func TestShouldTrain(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAgent(store, staticFetcher{}, testPipeline(store), nil, func() time.Time { return now })

	if !a.ShouldTrain(ctx) {
		t.Fatalf("missing state means first run")
	}
	_ = a.EnsureState(ctx)
	if !a.ShouldTrain(ctx) {
		t.Fatalf("never trained means first run")
	}

	last := now.Add(-5 * time.Hour)
	_ = store.UpsertAgentState(ctx, models.AgentState{AgentID: "bitcoin_predictor", TrainingCount: 1, LastTrainingTime: &last})
	if a.ShouldTrain(ctx) {
		t.Fatalf("interval has not elapsed")
	}

	last = now.Add(-6 * time.Hour)
	_ = store.UpsertAgentState(ctx, models.AgentState{AgentID: "bitcoin_predictor", TrainingCount: 1, LastTrainingTime: &last})
	if !a.ShouldTrain(ctx) {
		t.Fatalf("interval elapsed")
	}

	a.state.Store(StateTraining)
	if a.ShouldTrain(ctx) {
		t.Fatalf("must not train while a cycle is in flight")
	}
}

type blockingPipeline struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingPipeline) Initialize(context.Context) error { return nil }

func (p *blockingPipeline) Train(ctx context.Context, _ []models.PricePoint) (sequence.TrainOutcome, error) {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return sequence.TrainOutcome{Accuracy: 90}, nil
}

func (p *blockingPipeline) Predict(context.Context, []models.PricePoint) ([]models.Prediction, error) {
	return nil, nil
}

func (p *blockingPipeline) SaveModel(context.Context) error { return errors.New("disk full") }
func (p *blockingPipeline) Accuracy() float64               { return 90 }

func TestAgentSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	p := &blockingPipeline{entered: make(chan struct{}), release: make(chan struct{})}
	a := newTestAgent(store, staticFetcher{points: dailySeries(90)}, p, sink, time.Now)
	_ = a.EnsureState(ctx)

	updates, unsubscribe := a.Subscribe()
	defer unsubscribe()

	if !a.TriggerTraining() {
		t.Fatalf("first trigger should start a cycle")
	}
	<-p.entered
	if a.TriggerTraining() {
		t.Fatalf("second trigger must be rejected while training")
	}
	if err := a.TrainNow(ctx); !errors.Is(err, ErrAlreadyTraining) {
		t.Fatalf("expected ErrAlreadyTraining, got %v", err)
	}
	if !a.Status(ctx).Training {
		t.Fatalf("status should report training")
	}
	select {
	case s := <-updates:
		if !s.Training {
			t.Fatalf("first update should report training")
		}
	case <-time.After(time.Second):
		t.Fatalf("no status update")
	}

	close(p.release)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Wait(waitCtx); err != nil {
		t.Fatal(err)
	}

	st, _ := store.GetAgentState(ctx, "bitcoin_predictor")
	if st.TrainingCount != 1 || st.Accuracy != 90 {
		t.Fatalf("unexpected state %+v", st)
	}
	logs, _ := store.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "save_model" {
		t.Fatalf("save failure should be logged and not abort the cycle, got %+v", logs)
	}
	if !a.TriggerTraining() {
		t.Fatalf("guard should be released after the cycle")
	}
	_ = a.Wait(waitCtx)
}

type flakyStore struct {
	*repository.MemoryStore
	mu         sync.Mutex
	appendFail int
	getErr     error
}

func (s *flakyStore) AppendTrainingResult(ctx context.Context, r models.TrainingResult) error {
	s.mu.Lock()
	if s.appendFail > 0 {
		s.appendFail--
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.MemoryStore.AppendTrainingResult(ctx, r)
}

func (s *flakyStore) GetAgentState(ctx context.Context, id string) (*models.AgentState, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.GetAgentState(ctx, id)
}

func TestAgentRetriesResultWrite(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem, appendFail: 2}
	a := newTestAgent(store, staticFetcher{points: dailySeries(90)}, testPipeline(mem), NewErrorSink(mem, nil), time.Now)
	_ = a.EnsureState(ctx)

	if err := a.TrainNow(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}
	if results, _ := mem.ListTrainingResults(ctx, 10); len(results) != 1 {
		t.Fatalf("expected one result after retries, got %d", len(results))
	}
}

func TestAgentStatusFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem}
	a := newTestAgent(store, staticFetcher{points: dailySeries(90)}, testPipeline(mem), nil, time.Now)
	_ = a.EnsureState(ctx)
	if err := a.TrainNow(ctx); err != nil {
		t.Fatalf("train: %v", err)
	}

	store.mu.Lock()
	store.getErr = errors.New("store down")
	store.mu.Unlock()

	status := a.Status(ctx)
	if status.State.TrainingCount != 1 {
		t.Fatalf("expected snapshot with one training, got %+v", status.State)
	}
}

func TestAgentStartRunsImmediateCheck(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cfg := DefaultAgentConfig()
	cfg.PollInterval = time.Hour
	a := NewAgent(store, staticFetcher{points: dailySeries(90)}, testPipeline(store), nil,
		WithAgentConfig(cfg),
		WithWritePolicy(fastPolicy()),
	)
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := store.GetAgentState(ctx, cfg.AgentID)
		if err == nil && st.TrainingCount == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("first check did not train")
}
