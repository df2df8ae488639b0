package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreAgentState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetAgentState(ctx, "bitcoin_predictor"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.InsertAgentState(ctx, models.NewAgentState("bitcoin_predictor", now))

	st := models.AgentState{AgentID: "bitcoin_predictor", TrainingCount: 3, LastTrainingTime: &now, Accuracy: 81}
	// insert never overwrites
	_ = s.InsertAgentState(ctx, st)
	got, _ := s.GetAgentState(ctx, "bitcoin_predictor")
	if got.TrainingCount != 0 {
		t.Fatalf("insert must not overwrite, got %+v", got)
	}

	_ = s.UpsertAgentState(ctx, st)
	got, _ = s.GetAgentState(ctx, "bitcoin_predictor")
	if got.TrainingCount != 3 || got.Accuracy != 81 || !got.LastTrainingTime.Equal(now) {
		t.Fatalf("unexpected state %+v", got)
	}

	// returned values are copies
	*got.LastTrainingTime = now.Add(time.Hour)
	again, _ := s.GetAgentState(ctx, "bitcoin_predictor")
	if !again.LastTrainingTime.Equal(now) {
		t.Fatalf("store leaked internal pointer")
	}
}

func TestMemoryStoreOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.AppendPricePoints(ctx, "bitcoin", []models.PricePoint{
		{Timestamp: base.AddDate(0, 0, 2), Price: decimal.NewFromInt(3)},
		{Timestamp: base, Price: decimal.NewFromInt(1)},
	})
	pts, _ := s.ListPricePoints(ctx, "bitcoin")
	if len(pts) != 2 || !pts[0].Timestamp.Equal(base) {
		t.Fatalf("expected ascending series, got %+v", pts)
	}

	for i := 0; i < 3; i++ {
		_ = s.AppendTrainingResult(ctx, models.TrainingResult{Accuracy: float64(i), Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}
	res, _ := s.ListTrainingResults(ctx, 2)
	if len(res) != 2 || res[0].Accuracy != 2 {
		t.Fatalf("expected newest first, got %+v", res)
	}
}

func TestMemoryStoreLatestModel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.SaveModel(ctx, models.ModelSnapshot{AssetID: "bitcoin", ModelData: []byte("new"), UpdatedAt: base.Add(time.Hour)})
	_ = s.SaveModel(ctx, models.ModelSnapshot{AssetID: "bitcoin", ModelData: []byte("old"), UpdatedAt: base})

	m, err := s.LatestModel(ctx, "bitcoin")
	if err != nil || string(m.ModelData) != "new" {
		t.Fatalf("expected latest model, got %v %v", m, err)
	}
	if _, err := s.LatestModel(ctx, "ethereum"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
