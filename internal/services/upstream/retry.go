package upstream

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultAttempts caps retries of transient failures per call.
	DefaultAttempts = 3
	baseBackoff     = 500 * time.Millisecond
)

// Do runs fn up to attempts times, backing off exponentially between tries.
// Only transient errors are retried: NotFound is returned immediately (it
// is an answer, not a failure), and rate-limit or authorization errors
// propagate untouched so the caller can abort the run.
func Do(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || IsRateLimit(err) || IsAuth(err) {
			return err
		}
		var te *TransientError
		if !errors.As(err, &te) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
