package models

import "time"

// EventTrainingCompleted is the event type announced after a successful cycle.
const EventTrainingCompleted = "training.completed"

// TrainingCompletedEvent is published to the events topic.
type TrainingCompletedEvent struct {
	Event         string       `json:"event"`
	ResultID      string       `json:"result_id"`
	AgentID       string       `json:"agent_id"`
	AssetID       string       `json:"asset_id"`
	Accuracy      float64      `json:"accuracy"`
	TrainingCount int          `json:"training_count"`
	Predictions   []Prediction `json:"predictions"`
	Timestamp     time.Time    `json:"timestamp"`
}

// CommandTrain asks the agent to start a training cycle.
const CommandTrain = "train"

// AgentCommand is consumed from the commands topic.
type AgentCommand struct {
	Command     string `json:"command" validate:"required,oneof=train"`
	RequestedBy string `json:"requested_by,omitempty"`
}
