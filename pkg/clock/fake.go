package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Advance moves the fake time
// forward and fires any timers or tickers that come due, in order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	at      time.Time
	ch      chan time.Time
	period  time.Duration // zero for one-shot timers
	stopped bool
}

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires once the fake clock has been advanced
// past d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		at: f.now.Add(d),
		ch: make(chan time.Time, 1),
	}
	if d <= 0 {
		w.ch <- f.now
		return w.ch
	}
	f.waiters = append(f.waiters, w)
	return w.ch
}

// NewTicker returns a ticker driven by Advance.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		at:     f.now.Add(d),
		ch:     make(chan time.Time, 1),
		period: d,
	}
	f.waiters = append(f.waiters, w)
	return &fakeTicker{clock: f, w: w}
}

// Advance moves the fake time forward by d, firing due waiters in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)
	for {
		next := f.nextDueLocked(target)
		if next == nil {
			break
		}
		f.now = next.at
		select {
		case next.ch <- f.now:
		default:
			// Receiver has not drained the previous tick; drop rather
			// than block Advance.
		}
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			f.removeLocked(next)
		}
	}
	f.now = target
}

// nextDueLocked returns the earliest live waiter due at or before target.
func (f *Fake) nextDueLocked(target time.Time) *fakeWaiter {
	var next *fakeWaiter
	for _, w := range f.waiters {
		if w.stopped || w.at.After(target) {
			continue
		}
		if next == nil || w.at.Before(next.at) {
			next = w
		}
	}
	return next
}

func (f *Fake) removeLocked(target *fakeWaiter) {
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock *Fake
	w     *fakeWaiter
}

func (ft *fakeTicker) C() <-chan time.Time {
	return ft.w.ch
}

func (ft *fakeTicker) Stop() {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	ft.w.stopped = true
}
