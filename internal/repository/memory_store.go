package repository

import (
	"context"
	"sort"
	"sync"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
)

// MemoryStore is an in-process StateStore. It backs tests and single-node
// runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[string]models.AgentState
	results []models.TrainingResult
	history map[string][]models.PricePoint
	models  []models.ModelSnapshot
	errors  []models.ErrorLogEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]models.AgentState),
		history: make(map[string][]models.PricePoint),
	}
}

var _ domrepo.StateStore = (*MemoryStore)(nil)

func (s *MemoryStore) Init(context.Context) error   { return nil }
func (s *MemoryStore) Health(context.Context) error { return nil }
func (s *MemoryStore) Close() error                 { return nil }

func (s *MemoryStore) GetAgentState(_ context.Context, agentID string) (*models.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[agentID]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return cloneState(st), nil
}

func (s *MemoryStore) InsertAgentState(_ context.Context, st models.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[st.AgentID]; ok {
		return nil
	}
	s.states[st.AgentID] = *cloneState(st)
	return nil
}

func (s *MemoryStore) UpsertAgentState(_ context.Context, st models.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.AgentID] = *cloneState(st)
	return nil
}

func (s *MemoryStore) AppendTrainingResult(_ context.Context, r models.TrainingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Predictions = append([]models.Prediction(nil), r.Predictions...)
	r.History = append([]models.EpochMetrics(nil), r.History...)
	s.results = append(s.results, r)
	return nil
}

func (s *MemoryStore) ListTrainingResults(_ context.Context, limit int) ([]models.TrainingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrainingResult, len(s.results))
	copy(out, s.results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) ListPricePoints(_ context.Context, assetID string) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.PricePoint(nil), s.history[assetID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) AppendPricePoints(_ context.Context, assetID string, points []models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[assetID] = append(s.history[assetID], points...)
	return nil
}

func (s *MemoryStore) SaveModel(_ context.Context, m models.ModelSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ModelData = append([]byte(nil), m.ModelData...)
	s.models = append(s.models, m)
	return nil
}

func (s *MemoryStore) LatestModel(_ context.Context, assetID string) (*models.ModelSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.ModelSnapshot
	for i := range s.models {
		m := s.models[i]
		if m.AssetID != assetID {
			continue
		}
		if latest == nil || !m.UpdatedAt.Before(latest.UpdatedAt) {
			latest = &m
		}
	}
	if latest == nil {
		return nil, domrepo.ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) AppendErrorLog(_ context.Context, e models.ErrorLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
	return nil
}

func (s *MemoryStore) ListErrorLogs(_ context.Context, limit int) ([]models.ErrorLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ErrorLogEntry, len(s.errors))
	copy(out, s.errors)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func cloneState(st models.AgentState) *models.AgentState {
	if st.LastTrainingTime != nil {
		t := *st.LastTrainingTime
		st.LastTrainingTime = &t
	}
	return &st
}

func truncate[T any](xs []T, limit int) []T {
	if limit > 0 && len(xs) > limit {
		return xs[:limit]
	}
	return xs
}
