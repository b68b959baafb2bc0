// Package backoff applies a small retry policy to an operation.
package backoff

import (
	"context"
	"time"
)

// Policy describes how an operation is retried: how many total attempts
// are made, how long to wait before retry attempt n (0-based), and which
// errors are worth retrying at all.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// Exponential returns base << attempt capped at max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << uint(attempt)
		if d <= 0 || d > max {
			d = max
		}
		return d
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The delay between attempts respects ctx.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}

		delay := time.Second
		if p.Delay != nil {
			delay = p.Delay(i)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
