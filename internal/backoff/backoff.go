// Package backoff provides the sleep policies used by the engine's
// long-running loops after an iteration fails.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with optional jitter.
// A Backoff with initial == max and no jitter is a fixed delay.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	jitter  float64
}

// New creates an exponential backoff with ±20% jitter.
func New(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		jitter:  0.2,
	}
}

// Fixed creates a backoff that always waits exactly d.
func Fixed(d time.Duration) *Backoff {
	return &Backoff{
		initial: d,
		max:     d,
		current: d,
	}
}

// Next returns the duration to wait now and advances the backoff.
func (b *Backoff) Next() time.Duration {
	wait := b.current
	if b.jitter > 0 {
		j := float64(b.current) * b.jitter * (rand.Float64()*2 - 1)
		wait = time.Duration(float64(b.current) + j)
	}

	// Increase for next time
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return wait
}

// Sleep waits for the next backoff duration or until ctx is done.
// Returns ctx.Err() if the wait was interrupted.
func (b *Backoff) Sleep(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset resets the backoff to the initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Current returns the current backoff duration.
func (b *Backoff) Current() time.Duration {
	return b.current
}
