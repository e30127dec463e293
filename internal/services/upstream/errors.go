package upstream

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks an upstream-confirmed absence. Callers skip the item
// without counting it as a failure.
var ErrNotFound = errors.New("upstream: not found")

// RateLimitError means the upstream reported quota exhaustion. It is fatal
// for the current run: callers stop the batch, keep partial progress and
// leave the rest for the next scheduled run.
type RateLimitError struct {
	Upstream   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limit exceeded, retry after %s", e.Upstream, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limit exceeded", e.Upstream)
}

// TransientError wraps a network or 5xx failure. Retried with backoff; once
// attempts are exhausted it is counted as an item/batch failure.
type TransientError struct {
	Upstream string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient fetch error: %v", e.Upstream, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means credentials are missing or rejected. A sync run aborts
// immediately, before any item is attempted.
type AuthError struct {
	Upstream string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authorization failed: %s", e.Upstream, e.Reason)
}

// ValidationError rejects malformed caller input before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRateLimit reports whether err (or anything it wraps) is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ClassifyStatus maps an HTTP status code onto the error taxonomy shared by
// every upstream client. 2xx is success, 404 is the skippable NotFound
// answer, 429 aborts the run, 401/403 abort before anything is attempted
// and everything else is retried as transient.
func ClassifyStatus(name string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 404:
		return ErrNotFound
	case code == 429:
		return &RateLimitError{Upstream: name}
	case code == 401 || code == 403:
		return &AuthError{Upstream: name, Reason: fmt.Sprintf("HTTP %d", code)}
	default:
		return &TransientError{Upstream: name, Err: fmt.Errorf("HTTP %d", code)}
	}
}
