package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	"PriceAgent/internal/domain/service"
	"PriceAgent/pkg/cache"
	applogger "PriceAgent/pkg/logger"
	"PriceAgent/pkg/retry"
	"PriceAgent/pkg/util"

	"github.com/shopspring/decimal"
)

// DefaultLatestPriceTTL bounds how long a fetched spot price is served.
const DefaultLatestPriceTTL = 5 * time.Minute

// DataAcquisition produces ordered, deduplicated price series. It prefers
// the store, falls back to the remote source and writes fetched data back.
type DataAcquisition struct {
	store    domrepo.PriceHistoryStore
	source   domrepo.PriceSource
	cache    cache.Service
	policy   *retry.Policy
	writes   *retry.Policy
	reporter service.ErrorReporter
	metrics  domrepo.Metrics
	ttl      time.Duration
	l        *applogger.Logger
}

// DataAcquisitionOption configures DataAcquisition.
type DataAcquisitionOption func(*DataAcquisition)

// WithRetryPolicy sets the policy applied to remote calls.
func WithRetryPolicy(p *retry.Policy) DataAcquisitionOption {
	return func(d *DataAcquisition) {
		if p != nil {
			d.policy = p
		}
	}
}

// WithPersistPolicy sets the policy applied to price history writes.
func WithPersistPolicy(p *retry.Policy) DataAcquisitionOption {
	return func(d *DataAcquisition) {
		if p != nil {
			d.writes = p
		}
	}
}

// WithLatestPriceTTL sets the spot price cache window.
func WithLatestPriceTTL(ttl time.Duration) DataAcquisitionOption {
	return func(d *DataAcquisition) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithAcquisitionMetrics sets the metrics recorder.
func WithAcquisitionMetrics(m domrepo.Metrics) DataAcquisitionOption {
	return func(d *DataAcquisition) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDataAcquisition creates DataAcquisition. cache holds the latest price.
func NewDataAcquisition(store domrepo.PriceHistoryStore, source domrepo.PriceSource, c cache.Service, reporter service.ErrorReporter, opts ...DataAcquisitionOption) *DataAcquisition {
	if reporter == nil {
		reporter = service.NopReporter{}
	}
	d := &DataAcquisition{
		store:    store,
		source:   source,
		cache:    c,
		policy:   retry.New(),
		writes:   retry.New(retry.WithMaxAttempts(1)),
		reporter: reporter,
		metrics:  domrepo.NopMetrics{},
		ttl:      DefaultLatestPriceTTL,
		l:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLogger injects a structured logger.
func (d *DataAcquisition) SetLogger(l *applogger.Logger) {
	if l != nil {
		d.l = l
	}
}

// FetchHistoricalSeries returns the cached series when present, otherwise
// fetches lookbackDays from the source. Failures yield an empty series.
func (d *DataAcquisition) FetchHistoricalSeries(ctx context.Context, assetID string, lookbackDays int) []models.PricePoint {
	cached, err := d.store.ListPricePoints(ctx, assetID)
	if err != nil {
		d.l.Warn("read cached series failed", applogger.String("asset", assetID), applogger.Error(err))
	}
	if len(cached) > 0 {
		d.metrics.RecordFetch("store", "hit")
		return cached
	}

	var points []models.PricePoint
	err = d.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		pts, err := d.source.MarketChart(ctx, assetID, lookbackDays)
		if err != nil {
			d.l.Warn("market chart attempt failed",
				applogger.String("asset", assetID),
				applogger.Int("attempt", attempt),
				applogger.Bool("timeout", failure.IsTimeout(err)),
				applogger.Error(err),
			)
			if !failure.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		points = pts
		return nil
	})
	if err != nil {
		d.metrics.RecordFetch("remote", "error")
		d.reporter.Report(ctx, "historical_data_fetch", err)
		return nil
	}
	d.metrics.RecordFetch("remote", "ok")

	points = DedupeDaily(points)
	if len(points) == 0 {
		d.l.Warn("source returned no prices", applogger.String("asset", assetID))
		return nil
	}

	err = d.writes.Do(ctx, func(ctx context.Context, _ int) error {
		return d.store.AppendPricePoints(ctx, assetID, points)
	})
	if err != nil {
		d.reporter.Report(ctx, "historical_data_persist", failure.PersistenceError("append_price_points", err))
	}
	d.l.Info("historical series fetched",
		applogger.String("asset", assetID),
		applogger.Int("points", len(points)),
		applogger.Time("from", points[0].Timestamp),
		applogger.Time("to", points[len(points)-1].Timestamp),
	)
	return points
}

// CachedSeries returns the stored series deduplicated by day, limited to the
// last days observations when days > 0.
func (d *DataAcquisition) CachedSeries(ctx context.Context, assetID string, days int) ([]models.PricePoint, error) {
	points, err := d.store.ListPricePoints(ctx, assetID)
	if err != nil {
		return nil, failure.PersistenceError("list_price_points", err)
	}
	points = DedupeDaily(points)
	if days > 0 && len(points) > days {
		points = points[len(points)-days:]
	}
	return points, nil
}

// GetLatestPrice returns the spot price, serving it from cache for the TTL.
// ok is false when the price is unavailable.
func (d *DataAcquisition) GetLatestPrice(ctx context.Context, assetID string) (decimal.Decimal, bool) {
	key := cache.Key("latest_price", assetID)
	var cached decimal.Decimal
	err := d.cache.Get(ctx, key, &cached)
	if err == nil {
		d.metrics.RecordFetch("latest_cache", "hit")
		return cached, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		d.l.Warn("latest price cache read failed", applogger.Error(err))
	}

	var price decimal.Decimal
	err = d.policy.Do(ctx, func(ctx context.Context, _ int) error {
		p, err := d.source.SimplePrice(ctx, assetID)
		if err != nil {
			if !failure.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		d.metrics.RecordFetch("latest", "error")
		d.reporter.Report(ctx, "latest_price_fetch", err)
		return decimal.Decimal{}, false
	}
	d.metrics.RecordFetch("latest", "ok")
	f, _ := price.Float64()
	d.metrics.RecordLastPrice(assetID, f)

	if err := d.cache.Set(ctx, key, price, d.ttl); err != nil {
		d.l.Warn("latest price cache write failed", applogger.Error(err))
	}
	return price, true
}

// DedupeDaily keeps, for each UTC calendar day, the entry with the latest
// timestamp. The result is ordered by timestamp ascending.
func DedupeDaily(points []models.PricePoint) []models.PricePoint {
	if len(points) == 0 {
		return nil
	}
	byDay := make(map[string]models.PricePoint, len(points))
	for _, p := range points {
		key := util.DayKey(p.Timestamp)
		if cur, ok := byDay[key]; !ok || p.Timestamp.After(cur.Timestamp) {
			byDay[key] = p
		}
	}
	out := make([]models.PricePoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
