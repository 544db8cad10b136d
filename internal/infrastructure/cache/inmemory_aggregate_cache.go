package cache

import (
	"context"
	"sync"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
)

// aggregateEntry represents a cached aggregate with expiration
type aggregateEntry struct {
	agg       *rollup.RangeAggregate
	expiresAt time.Time
}

// InMemoryAggregateCache implements rollup.AggregateCache using an in-memory
// map. This is suitable for single-instance deployments and testing.
type InMemoryAggregateCache struct {
	mu        sync.RWMutex
	entries   map[string]aggregateEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryAggregateCache creates a new in-memory aggregate cache.
// It starts a background goroutine to clean up expired entries.
func NewInMemoryAggregateCache() *InMemoryAggregateCache {
	cache := &InMemoryAggregateCache{
		entries:  make(map[string]aggregateEntry),
		stopChan: make(chan struct{}),
	}

	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

// Get returns the cached aggregate for key, or ok=false on a miss.
func (c *InMemoryAggregateCache) Get(ctx context.Context, key string) (*rollup.RangeAggregate, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		return nil, false, nil // Expired, treat as a miss
	}
	return e.agg, true, nil
}

// Set stores the aggregate under key with the given TTL.
func (c *InMemoryAggregateCache) Set(ctx context.Context, key string, agg *rollup.RangeAggregate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = aggregateEntry{
		agg:       agg,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// InvalidateAll drops every cached aggregate.
func (c *InMemoryAggregateCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]aggregateEntry)
	return nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemoryAggregateCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryAggregateCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemoryAggregateCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryAggregateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ rollup.AggregateCache = (*InMemoryAggregateCache)(nil)
