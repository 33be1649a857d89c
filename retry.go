package manifold

import (
	"context"
	"fmt"
	"time"
)

// Retrier re-runs a fallible operation a bounded number of times. Fetch-type
// stages use it to ride out transient network failures.
type Retrier struct {
	maxAttempts int
	shouldRetry func(error) bool
	backoff     func(attempt int) time.Duration
}

// NewRetrier creates a retrier making at most maxAttempts attempts. By
// default every error is retried with no backoff.
func NewRetrier(maxAttempts int) *Retrier {
	if maxAttempts < 1 {
		panic("manifold.NewRetrier: maxAttempts must be positive")
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		shouldRetry: func(_ error) bool { return true },
		backoff:     func(_ int) time.Duration { return 0 },
	}
}

// WithShouldRetry adds a predicate deciding whether an error is worth
// another attempt.
func (r *Retrier) WithShouldRetry(shouldRetry func(error) bool) *Retrier {
	r.shouldRetry = shouldRetry
	return r
}

// WithBackoff adds a delay strategy between attempts. attempt counts from 0.
func (r *Retrier) WithBackoff(backoff func(attempt int) time.Duration) *Retrier {
	r.backoff = backoff
	return r
}

// WithFixedBackoff waits the same delay between every attempt.
func (r *Retrier) WithFixedBackoff(delay time.Duration) *Retrier {
	r.backoff = func(_ int) time.Duration { return delay }
	return r
}

// Do runs fn until it succeeds, the attempt budget runs out, the predicate
// declines the error, or ctx ends. Exhaustion returns a
// *RetryExhaustedError wrapping the last attempt's error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
			}
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.shouldRetry(err) {
			return fmt.Errorf("retry giving up after %d attempts: %w", attempt+1, err)
		}

		if attempt < r.maxAttempts-1 {
			delay := r.backoff(attempt)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return fmt.Errorf("retry interrupted during backoff: %w", ctx.Err())
				case <-time.After(delay):
				}
			}
		}
	}
	return NewRetryExhaustedError(r.maxAttempts, lastErr)
}
