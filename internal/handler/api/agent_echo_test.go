package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/repository"
	"PriceAgent/internal/usecase"
	"PriceAgent/pkg/cache"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type fakeAgent struct {
	mu      sync.Mutex
	busy    bool
	updates chan models.AgentStatus
}

func (a *fakeAgent) TriggerTraining() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *fakeAgent) Status(context.Context) models.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return models.AgentStatus{State: models.AgentState{AgentID: "bitcoin_predictor", TrainingCount: 2}, Training: a.busy}
}

func (a *fakeAgent) Subscribe() (<-chan models.AgentStatus, func()) {
	return a.updates, func() {}
}

type fakeSource struct{}

func (fakeSource) MarketChart(context.Context, string, int) ([]models.PricePoint, error) {
	return nil, errors.New("offline")
}

func (fakeSource) SimplePrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(50000), nil
}

type healthFunc func(context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func setup(t *testing.T, health error) (*echo.Echo, *fakeAgent, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	data := usecase.NewDataAcquisition(store, fakeSource{}, cache.NewMemoryCache(), nil)
	reports := usecase.NewReportsUseCase("bitcoin", store, store, data)
	agent := &fakeAgent{updates: make(chan models.AgentStatus, 1)}
	h := NewAgentEchoHandler(nil, agent, reports, healthFunc(func(context.Context) error { return health }))
	e := echo.New()
	h.RegisterRoutes(e)
	return e, agent, store
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if env.Status != rec.Code {
		t.Fatalf("envelope status %d differs from http status %d", env.Status, rec.Code)
	}
	if dest != nil {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func TestTrainTrigger(t *testing.T) {
	e, _, _ := setup(t, nil)

	rec := do(e, http.MethodPost, "/api/train")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp models.TrainResponse
	decode(t, rec, &resp)
	if resp.Status != "started" {
		t.Fatalf("unexpected status %q", resp.Status)
	}

	rec = do(e, http.MethodPost, "/api/train")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	decode(t, rec, &resp)
	if resp.Status != "already_training" {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestStatus(t *testing.T) {
	e, agent, _ := setup(t, nil)
	agent.TriggerTraining()

	rec := do(e, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st models.AgentStatus
	decode(t, rec, &st)
	if !st.Training || st.State.TrainingCount != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestResults(t *testing.T) {
	e, _, store := setup(t, nil)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = store.AppendTrainingResult(ctx, models.TrainingResult{ID: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}

	rec := do(e, http.MethodGet, "/api/results?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Rows  []models.TrainingResult `json:"rows"`
		Total int64                   `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 2 || list.Rows[0].ID != "c" {
		t.Fatalf("expected newest first, got %+v", list.Rows)
	}

	rec = do(e, http.MethodGet, "/api/results?limit=9999")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", rec.Code)
	}
}

func TestErrorsEmptyList(t *testing.T) {
	e, _, _ := setup(t, nil)
	rec := do(e, http.MethodGet, "/api/errors")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rows":[]`) {
		t.Fatalf("expected empty rows, got %s", rec.Body.String())
	}
}

func TestHistorySince(t *testing.T) {
	e, _, store := setup(t, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.PricePoint, 10)
	for i := range points {
		points[i] = models.PricePoint{Timestamp: base.AddDate(0, 0, i), Price: decimal.NewFromInt(int64(60000 + i))}
	}
	_ = store.AppendPricePoints(context.Background(), "bitcoin", points)

	rec := do(e, http.MethodGet, "/api/history?since=2024-03-08")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res usecase.HistoryResult
	decode(t, rec, &res)
	if res.Count != 3 || !res.Points[0].Timestamp.Equal(base.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected history %+v", res)
	}

	rec = do(e, http.MethodGet, "/api/history?days=-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPrice(t *testing.T) {
	e, _, _ := setup(t, nil)
	rec := do(e, http.MethodGet, "/api/price")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sum models.PriceSummary
	decode(t, rec, &sum)
	if sum.Price == nil || !sum.Price.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestHealthz(t *testing.T) {
	e, _, _ := setup(t, nil)
	if rec := do(e, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	e, _, _ = setup(t, errors.New("down"))
	if rec := do(e, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStatusStream(t *testing.T) {
	e, agent, _ := setup(t, nil)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first models.AgentStatus
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if first.Training || first.State.AgentID != "bitcoin_predictor" {
		t.Fatalf("unexpected initial status %+v", first)
	}

	agent.updates <- models.AgentStatus{State: models.AgentState{AgentID: "bitcoin_predictor"}, Training: true}
	var next models.AgentStatus
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !next.Training {
		t.Fatalf("expected training update")
	}
}
