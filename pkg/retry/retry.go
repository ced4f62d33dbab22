// Package retry provides bounded retry with exponential backoff for
// operations against the Redis backend. Both the broker service and the
// direct client execute their commands through the same policy so that
// failure behavior is identical regardless of the access path.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy defines retry behavior for backend operations.
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Retryable classifies errors. Nil means Transient.
	Retryable func(error) bool
}

// DefaultPolicy returns the standard backend retry policy: three attempts
// with doubling backoff capped at five seconds.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Transient reports whether err is worth another attempt. Context
// cancellation and deadline expiry are terminal: the caller's clock ran
// out, and repeating the call cannot help.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do executes fn under the policy, sleeping between attempts. The first
// non-retryable error is returned as-is; exhausting all attempts returns
// the last error wrapped.
func Do[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if p == nil || p.MaxAttempts <= 1 {
		return fn(ctx)
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	var lastErr error
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !retryable(err) {
			return zero, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
			if backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}

	return zero, fmt.Errorf("max retry attempts reached: %w", lastErr)
}
