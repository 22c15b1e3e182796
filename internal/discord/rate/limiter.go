// Package rate spaces out Discord API requests.
package rate

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter enforces a minimum delay between requests with random jitter.
type Limiter struct {
	mu          sync.Mutex
	next        time.Time
	minInterval time.Duration
	maxJitter   time.Duration
}

// New creates a limiter. baseInterval=1s and jitter=200ms spaces requests
// between 800ms and 1200ms apart. A zero interval never waits.
func New(baseInterval, jitter time.Duration) *Limiter {
	if jitter > baseInterval {
		jitter = baseInterval
	}

	return &Limiter{
		minInterval: baseInterval,
		maxJitter:   jitter,
	}
}

// Wait blocks until the next request slot. Slots are reserved under the lock
// so concurrent callers never share one.
func (r *Limiter) Wait(ctx context.Context) error {
	if r.minInterval <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	now := time.Now()
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	r.next = slot.Add(r.interval())
	r.mu.Unlock()

	waitDuration := time.Until(slot)
	if waitDuration <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Limiter) interval() time.Duration {
	if r.maxJitter <= 0 {
		return r.minInterval
	}

	//nolint:gosec // jitter does not need a secure source
	offset := time.Duration(rand.Int64N(int64(r.maxJitter)*2)) - r.maxJitter

	return r.minInterval + offset
}
