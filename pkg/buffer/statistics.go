package buffer

import "sync/atomic"

// Statistics tracks buffer activity with atomic counters. Always
// initialized; Prometheus export is optional on top.
type Statistics struct {
	appends      atomic.Int64
	drops        atomic.Int64
	drains       atomic.Int64
	drainedItems atomic.Int64
	size         atomic.Int64
}

// NewStatistics creates an empty Statistics.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Append records one successful insert.
func (s *Statistics) Append() { s.appends.Add(1) }

// Drop records one overflow eviction or discard.
func (s *Statistics) Drop() { s.drops.Add(1) }

// Drain records one DrainAll call returning n items.
func (s *Statistics) Drain(n int64) {
	s.drains.Add(1)
	s.drainedItems.Add(n)
}

// UpdateSize records the current buffer size.
func (s *Statistics) UpdateSize(n int64) { s.size.Store(n) }

// Appends returns the total number of inserts.
func (s *Statistics) Appends() int64 { return s.appends.Load() }

// Drops returns the total number of overflow drops.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Drains returns the total number of DrainAll calls.
func (s *Statistics) Drains() int64 { return s.drains.Load() }

// DrainedItems returns the total number of items returned by drains.
func (s *Statistics) DrainedItems() int64 { return s.drainedItems.Load() }

// Size returns the last recorded buffer size.
func (s *Statistics) Size() int64 { return s.size.Load() }
