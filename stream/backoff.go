package stream

import (
	"context"
	"time"

	"github.com/c360/tidewatch/pkg/clock"
)

// Backoff tracks consecutive failures for one stream unit and gates when
// the next attempt may run. The delay is fixed, not exponential: upstream
// sources rate-limit aggressively and regular spacing recovers faster
// than a growing gap. Owned by a single goroutine; not safe for
// concurrent use.
type Backoff struct {
	delay      time.Duration
	maxRetries int
	clock      clock.Clock

	failures    int
	nextAllowed time.Time
}

// NewBackoff returns a backoff with the given fixed delay and consecutive
// failure budget.
func NewBackoff(delay time.Duration, maxRetries int, clk clock.Clock) *Backoff {
	if clk == nil {
		clk = clock.New()
	}
	return &Backoff{delay: delay, maxRetries: maxRetries, clock: clk}
}

// Failure records one failed attempt and pushes the next allowed attempt
// out by the fixed delay.
func (b *Backoff) Failure() {
	b.failures++
	b.nextAllowed = b.clock.Now().Add(b.delay)
}

// Success resets the consecutive failure count. A single good read or
// tick forgives all prior failures.
func (b *Backoff) Success() {
	b.failures = 0
	b.nextAllowed = time.Time{}
}

// Failures returns the current consecutive failure count.
func (b *Backoff) Failures() int { return b.failures }

// Exhausted reports whether the consecutive failure budget is spent.
func (b *Backoff) Exhausted() bool { return b.failures >= b.maxRetries }

// Wait blocks until the next attempt is allowed or ctx is cancelled.
func (b *Backoff) Wait(ctx context.Context) error {
	remaining := b.nextAllowed.Sub(b.clock.Now())
	if remaining <= 0 {
		return ctx.Err()
	}
	select {
	case <-b.clock.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
