package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type quote struct {
	Price string `json:"price"`
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "price:bitcoin", quote{Price: "42000"}, 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got quote
	if err := mc.Get(ctx, "price:bitcoin", &got); err != nil || got.Price != "42000" {
		t.Fatalf("get: %v %+v", err, got)
	}

	now = now.Add(5 * time.Minute)
	if err := mc.Get(ctx, "price:bitcoin", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, time.Hour)
	now = now.Add(time.Second)
	_ = mc.Set(ctx, "b", 2, time.Hour)
	now = now.Add(time.Second)
	_ = mc.Set(ctx, "c", 3, time.Hour)

	if ok, _ := mc.Exists(ctx, "a"); ok {
		t.Fatalf("oldest key should be evicted")
	}
	var v int
	if err := mc.Get(ctx, "c", &v); err != nil || v != 3 {
		t.Fatalf("newest key missing: %v %d", err, v)
	}
}

func TestKey(t *testing.T) {
	if got := Key("latest_price", "bitcoin", "usd"); got != "latest_price:bitcoin:usd" {
		t.Fatalf("unexpected key %s", got)
	}
}
