package models

import "github.com/shopspring/decimal"

// Requests and responses for the agent HTTP endpoints.

type ListRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type ErrorLogsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type HistoryRequest struct {
	Days  int    `query:"days" json:"days" default:"0" validate:"gte=0,lte=3650"`
	Since string `query:"since" json:"since"` // RFC3339, YYYY-MM-DD or unix seconds
}

type TrainResponse struct {
	Status string `json:"status"` // started | already_training
}

type PriceSummary struct {
	AssetID         string           `json:"asset_id"`
	Price           *decimal.Decimal `json:"price"`
	PredictedChange *float64         `json:"predicted_change,omitempty"` // percent vs last horizon prediction
	Accuracy        float64          `json:"accuracy"`
}
