package emit

import (
	"context"
	"sync"
	"time"
)

// Backpressure spaces out hot-path pushes after repeated failures. Below
// the threshold it stays out of the way; past it, every emit waits
// min(max, base * 2^failures), collapsing to zero on the next success.
type Backpressure struct {
	mu        sync.Mutex
	failures  int
	threshold int
	base      time.Duration
	max       time.Duration
}

// NewBackpressure builds a backpressure gate. Zero values select the
// defaults: threshold 3, base 1s, max 30s.
func NewBackpressure(threshold int, base, max time.Duration) *Backpressure {
	if threshold <= 0 {
		threshold = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Backpressure{threshold: threshold, base: base, max: max}
}

// Delay returns the current wait window
func (b *Backpressure) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return 0
	}
	d := b.base << b.failures
	if d > b.max || d <= 0 {
		return b.max
	}
	return d
}

// Wait blocks for the current delay or until the context is done
func (b *Backpressure) Wait(ctx context.Context) error {
	d := b.Delay()
	if d == 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordFailure widens the window
func (b *Backpressure) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < 62 {
		b.failures++
	}
}

// RecordSuccess collapses the window
func (b *Backpressure) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
