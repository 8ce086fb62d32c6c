// Package retry provides a predicate-driven retry helper shared by the
// extraction flows that must re-ask the model until its output covers the
// whole input.
package retry

import (
	"context"
	"time"
)

// Backoff controls the delay between attempts. The delay doubles after each
// failed attempt up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when a zero Backoff is supplied.
var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// WithBackoff runs op up to maxAttempts times. A nil error with accept
// returning true ends the loop; a nil error with accept returning false is
// treated as an incomplete result and retried. The last error (or nil result
// of the last attempt) is returned after the attempts are exhausted.
func WithBackoff[T any](ctx context.Context, maxAttempts int, backoff Backoff, op func(ctx context.Context) (T, error), accept func(T) bool) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if backoff.Initial <= 0 {
		backoff = DefaultBackoff
	}

	delay := backoff.Initial
	var lastResult T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil && (accept == nil || accept(result)) {
			return result, nil
		}

		lastResult, lastErr = result, err

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if backoff.Max > 0 && delay > backoff.Max {
			delay = backoff.Max
		}
	}

	return lastResult, lastErr
}
