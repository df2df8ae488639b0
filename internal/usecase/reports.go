package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	"PriceAgent/internal/services/features"

	"github.com/shopspring/decimal"
)

const maxListLimit = 500

// ReportsUseCase serves the read side: results, errors, history, indicators
// and the latest price summary.
type ReportsUseCase struct {
	assetID string
	results domrepo.TrainingResultStore
	errors  domrepo.ErrorLogStore
	data    *DataAcquisition
}

func NewReportsUseCase(assetID string, results domrepo.TrainingResultStore, errs domrepo.ErrorLogStore, data *DataAcquisition) *ReportsUseCase {
	return &ReportsUseCase{assetID: assetID, results: results, errors: errs, data: data}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Results returns the newest training results first.
func (uc *ReportsUseCase) Results(ctx context.Context, limit int) ([]models.TrainingResult, error) {
	res, err := uc.results.ListTrainingResults(ctx, clampLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("list training results: %w", err)
	}
	return res, nil
}

// Errors returns the newest error log entries first.
func (uc *ReportsUseCase) Errors(ctx context.Context, limit int) ([]models.ErrorLogEntry, error) {
	res, err := uc.errors.ListErrorLogs(ctx, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	return res, nil
}

type HistoryResult struct {
	AssetID string              `json:"asset_id"`
	Count   int                 `json:"count"`
	Points  []models.PricePoint `json:"points"`
}

// History returns the cached daily series, the last days entries when days > 0.
// A non-zero since drops points before it.
func (uc *ReportsUseCase) History(ctx context.Context, days int, since time.Time) (*HistoryResult, error) {
	points, err := uc.data.CachedSeries(ctx, uc.assetID, days)
	if err != nil {
		return nil, fmt.Errorf("cached series: %w", err)
	}
	if !since.IsZero() {
		kept := points[:0:0]
		for _, p := range points {
			if !p.Timestamp.Before(since) {
				kept = append(kept, p)
			}
		}
		points = kept
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	return &HistoryResult{AssetID: uc.assetID, Count: len(points), Points: points}, nil
}

type IndicatorsResult struct {
	AssetID    string              `json:"asset_id"`
	Points     int                 `json:"points"`
	Indicators models.IndicatorSet `json:"indicators"`
}

// Indicators computes the indicator set over the cached series.
func (uc *ReportsUseCase) Indicators(ctx context.Context) (*IndicatorsResult, error) {
	points, err := uc.data.CachedSeries(ctx, uc.assetID, 0)
	if err != nil {
		return nil, fmt.Errorf("cached series: %w", err)
	}
	return &IndicatorsResult{
		AssetID:    uc.assetID,
		Points:     len(points),
		Indicators: features.Calculate(models.Prices(points), nil),
	}, nil
}

// PriceSummary combines the spot price with the newest forecast. The change
// is measured against the last prediction of the horizon.
func (uc *ReportsUseCase) PriceSummary(ctx context.Context) (*models.PriceSummary, error) {
	out := &models.PriceSummary{AssetID: uc.assetID}
	if price, ok := uc.data.GetLatestPrice(ctx, uc.assetID); ok {
		out.Price = &price
	}

	latest, err := uc.results.ListTrainingResults(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("list training results: %w", err)
	}
	if len(latest) == 0 {
		return out, nil
	}
	out.Accuracy = latest[0].Accuracy
	preds := latest[0].Predictions
	if out.Price != nil && !out.Price.IsZero() && len(preds) > 0 {
		change := PredictedChange(*out.Price, preds[len(preds)-1].Price)
		out.PredictedChange = &change
	}
	return out, nil
}

// PredictedChange is the percent move from current to predicted, rounded to
// two places.
func PredictedChange(current, predicted decimal.Decimal) float64 {
	if current.IsZero() {
		return 0
	}
	pct := predicted.Sub(current).Div(current).Mul(decimal.NewFromInt(100)).Round(2)
	f, _ := pct.Float64()
	return f
}
