package stream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/tidewatch/errors"
)

// RateLimiter enforces a minimum interval between attempts per stream
// name. Connect attempts and poll ticks for one stream share the same
// gate, so a stream can never fire two overlapping attempts. Safe for
// concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter returns an empty limiter. Streams without a registered
// interval pass through ungated.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// SetInterval registers the minimum spacing for a stream. A burst of one
// lets the first attempt proceed immediately.
func (rl *RateLimiter) SetInterval(name string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[name] = rate.NewLimiter(rate.Every(interval), 1)
}

// Acquire blocks until the stream may proceed or ctx is cancelled.
func (rl *RateLimiter) Acquire(ctx context.Context, name string) error {
	rl.mu.Lock()
	lim := rl.limiters[name]
	rl.mu.Unlock()

	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return errors.WrapTransient(err, "stream", "Acquire", "rate limit wait")
	}
	return nil
}
