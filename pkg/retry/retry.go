package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Option configures Policy.
type Option func(*Policy)

// Policy retries an operation with exponential backoff.
// Delay before attempt n+1 is InitialDelay * Multiplier^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool

	retryIf func(error) bool
	onRetry func(attempt int, err error, wait time.Duration)
}

// New creates a policy with 3 attempts, 1s initial delay doubling each time.
func New(opts ...Option) *Policy {
	p := &Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// WithMaxAttempts sets the total number of attempts (first call included).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.MaxAttempts = n
	}
}

// WithBackoff sets initial delay and multiplier.
func WithBackoff(initial time.Duration, multiplier float64) Option {
	return func(p *Policy) {
		p.InitialDelay = initial
		p.Multiplier = multiplier
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.MaxDelay = d
	}
}

// WithJitter subtracts up to 50% of each wait.
func WithJitter(enabled bool) Option {
	return func(p *Policy) {
		p.Jitter = enabled
	}
}

// WithRetryIf limits retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) {
		p.retryIf = fn
	}
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// permanentError stops the retry loop immediately.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Delay returns the wait applied after the given failed attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	wait := time.Duration(d)
	if p.Jitter && wait > 1 {
		wait -= time.Duration(rand.Int63n(int64(wait) / 2))
	}
	return wait
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned wrapped.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			var pe *permanentError
			errors.As(err, &pe)
			return pe.err
		}
		if p.retryIf != nil && !p.retryIf(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), lastErr)
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
