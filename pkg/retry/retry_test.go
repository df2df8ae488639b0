package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsOnSuccess(t *testing.T) {
	p := New(WithBackoff(time.Millisecond, 2))
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("down")
	var waits []time.Duration
	p := New(
		WithMaxAttempts(3),
		WithBackoff(time.Millisecond, 2),
		WithOnRetry(func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }),
	)
	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 || waits[0] != time.Millisecond || waits[1] != 2*time.Millisecond {
		t.Fatalf("unexpected waits %v", waits)
	}
}

func TestDoPermanentError(t *testing.T) {
	sentinel := errors.New("bad payload")
	p := New(WithBackoff(time.Millisecond, 2))
	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return Permanent(sentinel)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if err != sentinel {
		t.Fatalf("expected unwrapped sentinel, got %v", err)
	}
}

func TestDoRetryIf(t *testing.T) {
	p := New(WithBackoff(time.Millisecond, 2), WithRetryIf(func(error) bool { return false }))
	calls := 0
	_ = p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("nope")
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(WithBackoff(time.Hour, 2))
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context, int) error { return errors.New("down") })
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("retry did not observe cancellation")
	}
}

func TestDelayCapped(t *testing.T) {
	p := New(WithBackoff(time.Second, 2), WithMaxDelay(3*time.Second))
	if got := p.Delay(1); got != time.Second {
		t.Fatalf("delay(1)=%v", got)
	}
	if got := p.Delay(2); got != 2*time.Second {
		t.Fatalf("delay(2)=%v", got)
	}
	if got := p.Delay(5); got != 3*time.Second {
		t.Fatalf("delay(5)=%v", got)
	}
}
