package upstream

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum delay between successive calls to one
// upstream. It is a cooperative blocking throttle, not a token bucket:
// call volume per sync run is bounded and known in advance, so delaying
// the (single) caller before each request is enough to stay inside the
// upstream quota.
type Throttle struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Wait blocks until the configured interval has passed since the previous
// call, or until ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	since := time.Since(t.lastCall)
	if since < t.interval {
		select {
		case <-time.After(t.interval - since):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.lastCall = time.Now()
	return nil
}
