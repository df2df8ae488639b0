package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("cg") || !l.Allow("cg") {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("cg") {
		t.Fatalf("third call should be limited")
	}
	now = now.Add(time.Second)
	if !l.Allow("cg") {
		t.Fatalf("token should refill after 1s")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(1, 0.001)
	if err := l.Wait(context.Background(), "k"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDisabled(t *testing.T) {
	l := PerMinute(0)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatalf("disabled limiter must always allow")
		}
	}
}
