// Package buffer provides a bounded, drop-oldest ring buffer used as the
// per-category ingestion buffer. Producers never block: when the ring is
// full the oldest entry is evicted and counted. DrainAll atomically returns
// and empties the buffer so every record lands in exactly one of the
// drained slice or the post-drain buffer.
package buffer

import (
	"sync"
)

// OverflowPolicy controls behavior when an append hits a full buffer.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest entry to make room for the new one.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming entry instead.
	DropNewest
)

// Ring is a fixed-capacity, internally synchronized ring buffer.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest entry
	seq      uint64

	stats *Statistics
	opts  *options[T]
}

// New creates a ring buffer with the given capacity. Capacity below one is
// raised to one.
func New[T any](capacity int, opts ...Option[T]) (*Ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	o := newOptions(opts...)

	r := &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		opts:     o,
	}

	if o.metricsReg != nil && o.metricsPrefix != "" {
		metrics, err := newRingMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, err
		}
		r.opts.metrics = metrics
	}

	return r, nil
}

// Append inserts an item, evicting per the overflow policy when full.
// It never blocks and never fails.
func (r *Ring[T]) Append(item T) {
	var dropped *T

	r.mu.Lock()
	if r.size == r.capacity {
		switch r.opts.overflowPolicy {
		case DropNewest:
			r.stats.Drop()
			if r.opts.metrics != nil {
				r.opts.metrics.recordDrop()
			}
			r.mu.Unlock()
			if r.opts.dropCallback != nil {
				r.opts.dropCallback(item)
			}
			return
		default: // DropOldest
			evicted := r.items[r.tail]
			dropped = &evicted
			r.tail = (r.tail + 1) % r.capacity
			r.size--
			r.stats.Drop()
			if r.opts.metrics != nil {
				r.opts.metrics.recordDrop()
			}
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.seq++
	r.stats.Append()
	r.stats.UpdateSize(int64(r.size))
	if r.opts.metrics != nil {
		r.opts.metrics.updateSize(r.size)
	}
	r.mu.Unlock()

	// Callback runs outside the lock so it may re-enter the buffer.
	if dropped != nil && r.opts.dropCallback != nil {
		r.opts.dropCallback(*dropped)
	}
}

// DrainAll atomically returns all buffered items in insertion order and
// empties the buffer.
func (r *Ring[T]) DrainAll() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	drained := make([]T, r.size)
	var zero T
	for i := 0; i < len(drained); i++ {
		idx := (r.tail + i) % r.capacity
		drained[i] = r.items[idx]
		r.items[idx] = zero
	}

	r.head = 0
	r.tail = 0
	r.size = 0
	r.stats.Drain(int64(len(drained)))
	r.stats.UpdateSize(0)
	if r.opts.metrics != nil {
		r.opts.metrics.updateSize(0)
	}

	return drained
}

// Snapshot returns a copy of the buffered items in insertion order without
// removing them.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.size == 0 {
		return nil
	}

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.tail+i)%r.capacity]
	}
	return out
}

// Size returns the current number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the fixed capacity.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Inserted returns the monotonic insertion count, used as the insertion
// index of the most recent entry.
func (r *Ring[T]) Inserted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Stats returns buffer statistics. Always available.
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}
