package dedup

import "sync/atomic"

// Statistics tracks cache activity with atomic counters.
type Statistics struct {
	inserts      atomic.Int64
	duplicates   atomic.Int64
	ttlEvictions atomic.Int64
	lruEvictions atomic.Int64
	size         atomic.Int64
}

// NewStatistics creates an empty Statistics.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Insert records one new-key insertion.
func (s *Statistics) Insert() { s.inserts.Add(1) }

// Duplicate records one suppressed duplicate.
func (s *Statistics) Duplicate() { s.duplicates.Add(1) }

// EvictTTL records one TTL-sweep eviction.
func (s *Statistics) EvictTTL() { s.ttlEvictions.Add(1) }

// EvictLRU records one capacity eviction.
func (s *Statistics) EvictLRU() { s.lruEvictions.Add(1) }

// UpdateSize records the current entry count.
func (s *Statistics) UpdateSize(n int64) { s.size.Store(n) }

// Inserts returns the total new-key insertions.
func (s *Statistics) Inserts() int64 { return s.inserts.Load() }

// Duplicates returns the total suppressed duplicates.
func (s *Statistics) Duplicates() int64 { return s.duplicates.Load() }

// TTLEvictions returns the total TTL-sweep evictions.
func (s *Statistics) TTLEvictions() int64 { return s.ttlEvictions.Load() }

// LRUEvictions returns the total capacity evictions.
func (s *Statistics) LRUEvictions() int64 { return s.lruEvictions.Load() }

// Size returns the last recorded entry count.
func (s *Statistics) Size() int64 { return s.size.Load() }
