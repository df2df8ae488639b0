package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PriceAgent/internal/domain/failure"
	"PriceAgent/internal/domain/models"
	"PriceAgent/internal/repository"
	"PriceAgent/internal/service/coingecko"
	"PriceAgent/pkg/cache"
	"PriceAgent/pkg/retry"

	"github.com/shopspring/decimal"
)

func fastPolicy() *retry.Policy {
	return retry.New(retry.WithMaxAttempts(3), retry.WithBackoff(time.Millisecond, 2))
}

type fakeSource struct {
	points    []models.PricePoint
	price     decimal.Decimal
	err       error
	chartHits int32
	priceHits int32
}

func (s *fakeSource) MarketChart(context.Context, string, int) ([]models.PricePoint, error) {
	atomic.AddInt32(&s.chartHits, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func (s *fakeSource) SimplePrice(context.Context, string) (decimal.Decimal, error) {
	atomic.AddInt32(&s.priceHits, 1)
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.price, nil
}

func day(d, h int) time.Time {
	return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC)
}

func point(ts time.Time, p float64) models.PricePoint {
	return models.PricePoint{Timestamp: ts, Price: decimal.NewFromFloat(p)}
}

func TestDedupeDailyKeepsLatestEntry(t *testing.T) {
	in := []models.PricePoint{
		point(day(2, 0), 200),
		point(day(1, 0), 100),
		point(day(1, 23), 150),
		point(day(2, 5), 250),
	}
	out := DedupeDaily(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 days, got %d", len(out))
	}
	if !out[0].Price.Equal(decimal.NewFromInt(150)) || !out[1].Price.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected prices %s %s", out[0].Price, out[1].Price)
	}
	if !out[0].Timestamp.Before(out[1].Timestamp) {
		t.Fatalf("series not ascending")
	}
}

func TestFetchHistoricalSeriesPrefersStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cached := []models.PricePoint{point(day(1, 0), 1), point(day(2, 0), 2)}
	if err := store.AppendPricePoints(ctx, "bitcoin", cached); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{}
	d := NewDataAcquisition(store, src, cache.NewMemoryCache(), nil, WithRetryPolicy(fastPolicy()))

	got := d.FetchHistoricalSeries(ctx, "bitcoin", 730)
	if len(got) != 2 {
		t.Fatalf("expected cached series, got %d points", len(got))
	}
	if src.chartHits != 0 {
		t.Fatalf("source must not be called on a store hit")
	}
}

func TestFetchHistoricalSeriesPersistsFetched(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	src := &fakeSource{points: []models.PricePoint{
		point(day(1, 0), 10),
		point(day(1, 12), 11),
		point(day(2, 0), 12),
	}}
	d := NewDataAcquisition(store, src, cache.NewMemoryCache(), nil, WithRetryPolicy(fastPolicy()))

	got := d.FetchHistoricalSeries(ctx, "bitcoin", 730)
	if len(got) != 2 {
		t.Fatalf("expected 2 deduplicated points, got %d", len(got))
	}
	stored, _ := store.ListPricePoints(ctx, "bitcoin")
	if len(stored) != 2 {
		t.Fatalf("fetched series not written back, got %d", len(stored))
	}

	_ = d.FetchHistoricalSeries(ctx, "bitcoin", 730)
	if src.chartHits != 1 {
		t.Fatalf("second fetch should be served from the store, source hit %d times", src.chartHits)
	}
}

type flakyHistory struct {
	*repository.MemoryStore
	failAppends int32
	appends     int32
}

func (s *flakyHistory) AppendPricePoints(ctx context.Context, assetID string, points []models.PricePoint) error {
	atomic.AddInt32(&s.appends, 1)
	if atomic.AddInt32(&s.failAppends, -1) >= 0 {
		return errors.New("connection reset")
	}
	return s.MemoryStore.AppendPricePoints(ctx, assetID, points)
}

func TestFetchHistoricalSeriesRetriesPersist(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	store := &flakyHistory{MemoryStore: mem, failAppends: 2}
	src := &fakeSource{points: []models.PricePoint{point(day(1, 0), 10), point(day(2, 0), 12)}}
	sink := NewErrorSink(mem, nil)
	d := NewDataAcquisition(store, src, cache.NewMemoryCache(), sink,
		WithRetryPolicy(fastPolicy()),
		WithPersistPolicy(fastPolicy()),
	)

	if got := d.FetchHistoricalSeries(ctx, "bitcoin", 730); len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if n := atomic.LoadInt32(&store.appends); n != 3 {
		t.Fatalf("expected 3 write attempts, got %d", n)
	}
	if stored, _ := mem.ListPricePoints(ctx, "bitcoin"); len(stored) != 2 {
		t.Fatalf("series not persisted after retries, got %d", len(stored))
	}
	if logs, _ := mem.ListErrorLogs(ctx, 10); len(logs) != 0 {
		t.Fatalf("recovered write should not be reported, got %+v", logs)
	}
}

func TestFetchHistoricalSeriesPersistFailureReported(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	store := &flakyHistory{MemoryStore: mem, failAppends: 10}
	src := &fakeSource{points: []models.PricePoint{point(day(1, 0), 10)}}
	d := NewDataAcquisition(store, src, cache.NewMemoryCache(), NewErrorSink(mem, nil),
		WithRetryPolicy(fastPolicy()),
		WithPersistPolicy(fastPolicy()),
	)

	if got := d.FetchHistoricalSeries(ctx, "bitcoin", 730); len(got) != 1 {
		t.Fatalf("fetched series should still be returned, got %d", len(got))
	}
	logs, _ := mem.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "historical_data_persist" {
		t.Fatalf("expected one historical_data_persist entry, got %+v", logs)
	}
}

func TestFetchHistoricalSeriesRemoteFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := repository.NewMemoryStore()
	sink := NewErrorSink(store, nil)
	d := NewDataAcquisition(store, coingecko.New(srv.URL), cache.NewMemoryCache(), sink, WithRetryPolicy(fastPolicy()))

	got := d.FetchHistoricalSeries(ctx, "bitcoin", 730)
	if len(got) != 0 {
		t.Fatalf("expected empty series, got %d points", len(got))
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
	logs, _ := store.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "historical_data_fetch" {
		t.Fatalf("expected one historical_data_fetch entry, got %+v", logs)
	}
}

func TestFetchHistoricalSeriesMalformedNotRetried(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: failure.MalformedErrorf("market_chart", "missing prices")}
	d := NewDataAcquisition(repository.NewMemoryStore(), src, cache.NewMemoryCache(), nil, WithRetryPolicy(fastPolicy()))

	if got := d.FetchHistoricalSeries(ctx, "bitcoin", 30); len(got) != 0 {
		t.Fatalf("expected empty series")
	}
	if src.chartHits != 1 {
		t.Fatalf("malformed response must not be retried, got %d calls", src.chartHits)
	}
}

func TestGetLatestPriceCachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := cache.NewMemoryCache(cache.WithMemoryClock(clock))
	src := &fakeSource{price: decimal.RequireFromString("43210.12")}
	d := NewDataAcquisition(repository.NewMemoryStore(), src, c, nil, WithRetryPolicy(fastPolicy()))

	p, ok := d.GetLatestPrice(ctx, "bitcoin")
	if !ok || !p.Equal(src.price) {
		t.Fatalf("unexpected price %s ok=%v", p, ok)
	}
	_, _ = d.GetLatestPrice(ctx, "bitcoin")
	if src.priceHits != 1 {
		t.Fatalf("second call within TTL should hit the cache, source hit %d times", src.priceHits)
	}

	now = now.Add(DefaultLatestPriceTTL + time.Second)
	_, _ = d.GetLatestPrice(ctx, "bitcoin")
	if src.priceHits != 2 {
		t.Fatalf("expired entry should be refetched, source hit %d times", src.priceHits)
	}
}

func TestGetLatestPriceUnavailable(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	src := &fakeSource{err: failure.NetworkError("simple_price", errors.New("status 503"))}
	d := NewDataAcquisition(store, src, cache.NewMemoryCache(), NewErrorSink(store, nil), WithRetryPolicy(fastPolicy()))

	if _, ok := d.GetLatestPrice(ctx, "bitcoin"); ok {
		t.Fatalf("expected unavailable price")
	}
	logs, _ := store.ListErrorLogs(ctx, 10)
	if len(logs) != 1 || logs[0].Context != "latest_price_fetch" {
		t.Fatalf("expected latest_price_fetch entry, got %+v", logs)
	}
}
