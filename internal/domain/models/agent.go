package models

import (
	"time"
)

// AgentState is the single persisted record describing the training agent.
type AgentState struct {
	AgentID          string     `json:"agent_id"`
	TrainingCount    int        `json:"training_count"`
	LastTrainingTime *time.Time `json:"last_training_time,omitempty"`
	Accuracy         float64    `json:"accuracy"` // percent, 0..100
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewAgentState returns the zero-valued state created on first run.
func NewAgentState(agentID string, now time.Time) AgentState {
	return AgentState{AgentID: agentID, UpdatedAt: now}
}

// EpochMetrics is one entry of the fit history.
type EpochMetrics struct {
	Epoch   int     `json:"epoch"`
	Loss    float64 `json:"loss"`
	ValLoss float64 `json:"val_loss"`
}

// TrainingResult is appended once per completed training cycle.
type TrainingResult struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	AssetID     string         `json:"asset_id"`
	Accuracy    float64        `json:"accuracy"`
	Predictions []Prediction   `json:"predictions"`
	History     []EpochMetrics `json:"history,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ModelSnapshot is a serialized model with its bookkeeping.
type ModelSnapshot struct {
	AssetID   string    `json:"asset_id"`
	ModelData []byte    `json:"-"`
	Accuracy  float64   `json:"accuracy"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorLogEntry records a caught failure.
type ErrorLogEntry struct {
	Context   string    `json:"context"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStatus is returned by the status surface.
type AgentStatus struct {
	State    AgentState `json:"agent_state"`
	Training bool       `json:"training"`
}
