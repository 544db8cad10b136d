package cache

import (
	"context"
	"testing"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAggregate(start, end rollup.DateKey, orders int64) *rollup.RangeAggregate {
	bucket := rollup.NewDailyBucket(start)
	bucket.TotalOrders = orders
	bucket.TotalRevenue = decimal.NewFromInt(orders * 10)
	return rollup.CombineBuckets(start, end, []*rollup.DailyBucket{bucket})
}

func TestInMemoryAggregateCache_SetAndGet(t *testing.T) {
	cache := NewInMemoryAggregateCache()
	defer cache.Close()
	ctx := context.Background()

	agg := testAggregate("2025-03-01", "2025-03-07", 5)
	require.NoError(t, cache.Set(ctx, "range:2025-03-01:2025-03-07", agg, time.Minute))

	found, ok, err := cache.Get(ctx, "range:2025-03-01:2025-03-07")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), found.Totals.TotalOrders)
}

func TestInMemoryAggregateCache_Miss(t *testing.T) {
	cache := NewInMemoryAggregateCache()
	defer cache.Close()

	_, ok, err := cache.Get(context.Background(), "range:2025-03-01:2025-03-07")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryAggregateCache_Expiry(t *testing.T) {
	cache := NewInMemoryAggregateCache()
	defer cache.Close()
	ctx := context.Background()

	agg := testAggregate("2025-03-01", "2025-03-01", 1)
	require.NoError(t, cache.Set(ctx, "k", agg, time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are misses")
}

func TestInMemoryAggregateCache_InvalidateAll(t *testing.T) {
	cache := NewInMemoryAggregateCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", testAggregate("2025-03-01", "2025-03-01", 1), time.Minute))
	require.NoError(t, cache.Set(ctx, "b", testAggregate("2025-03-02", "2025-03-02", 1), time.Minute))
	require.NoError(t, cache.InvalidateAll(ctx))

	_, ok, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Size())
}

func TestInMemoryAggregateCache_CleanupRemovesExpired(t *testing.T) {
	cache := NewInMemoryAggregateCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "old", testAggregate("2025-03-01", "2025-03-01", 1), time.Millisecond))
	require.NoError(t, cache.Set(ctx, "fresh", testAggregate("2025-03-02", "2025-03-02", 1), time.Hour))

	time.Sleep(5 * time.Millisecond)
	cache.cleanup()

	assert.Equal(t, 1, cache.Size())
}
