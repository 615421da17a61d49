// Package dedup provides the short-lived identity cache that suppresses
// redundant records. Entries expire after a TTL swept by a background
// goroutine; a hard capacity bound triggers LRU eviction independent of
// TTL. CheckAndInsert is atomic: no two concurrent callers with the same
// key both observe isNew=true.
package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/c360/tidewatch/errors"
	"github.com/c360/tidewatch/pkg/clock"
)

// Defaults for the deduplication window.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultCapacity      = 10000
)

// Config tunes the cache.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Capacity      int
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
}

type entry struct {
	key        string
	insertedAt time.Time
}

// Cache is a thread-safe TTL+LRU deduplication cache.
type Cache struct {
	mu     sync.Mutex
	items  map[string]*list.Element
	order  *list.List // front = most recently inserted
	config Config
	clock  clock.Clock
	stats  *Statistics

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a cache and starts its TTL sweep goroutine, which runs until
// ctx is cancelled or Close is called. A nil clock selects the real clock.
func New(ctx context.Context, config Config, clk clock.Clock) *Cache {
	config.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}

	c := &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		config:   config,
		clock:    clk,
		stats:    NewStatistics(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	// The ticker is created here, not in the goroutine, so fake-clock
	// advances made right after New are already observed by the sweeper.
	ticker := clk.NewTicker(config.SweepInterval)
	go c.sweep(ctx, ticker)
	return c
}

// CheckAndInsert reports whether key is new inside the TTL window and
// records it. A duplicate refreshes LRU recency but not its insertion time.
func (c *Cache) CheckAndInsert(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		e := elem.Value.(*entry)
		if now.Sub(e.insertedAt) <= c.config.TTL {
			c.order.MoveToFront(elem)
			c.stats.Duplicate()
			return false
		}
		// Expired but not yet swept: treat as a fresh observation.
		e.insertedAt = now
		c.order.MoveToFront(elem)
		c.stats.Insert()
		return true
	}

	elem := c.order.PushFront(&entry{key: key, insertedAt: now})
	c.items[key] = elem
	c.stats.Insert()

	if c.order.Len() > c.config.Capacity {
		c.evictOldestLocked()
	}
	c.stats.UpdateSize(int64(len(c.items)))
	return true
}

// Contains reports whether key is currently live in the cache, without
// inserting or refreshing it.
func (c *Cache) Contains(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return false
	}
	return now.Sub(elem.Value.(*entry).insertedAt) <= c.config.TTL
}

// Size returns the current number of live entries (expired entries count
// until swept).
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics. Always available.
func (c *Cache) Stats() *Statistics {
	return c.stats
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() error {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.WrapTransient(errors.ErrShuttingDown, "dedup", "Close", "wait for sweep goroutine")
	}
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.items, oldest.Value.(*entry).key)
	c.stats.EvictLRU()
}

func (c *Cache) sweep(ctx context.Context, ticker clock.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C():
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Back(); elem != nil; {
		e := elem.Value.(*entry)
		prev := elem.Prev()
		if now.Sub(e.insertedAt) > c.config.TTL {
			c.order.Remove(elem)
			delete(c.items, e.key)
			c.stats.EvictTTL()
		}
		elem = prev
	}
	c.stats.UpdateSize(int64(len(c.items)))
}
