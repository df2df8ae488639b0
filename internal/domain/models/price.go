package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observation of the asset price.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// Float returns the price as float64 for numeric work.
func (p PricePoint) Float() float64 {
	f, _ := p.Price.Float64()
	return f
}

// Prices extracts float prices in series order.
func Prices(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Float()
	}
	return out
}

// Prediction is a forecast price for a calendar day.
type Prediction struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}
