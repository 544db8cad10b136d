package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/salesboard/backend/internal/domain/rollup"
)

// RedisAggregateCache implements rollup.AggregateCache using Redis. This is
// suitable for deployments where multiple instances should share the
// short-TTL range aggregates.
type RedisAggregateCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisAggregateCache creates a new Redis-based aggregate cache
func NewRedisAggregateCache(cfg RedisConfig) (*RedisAggregateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAggregateCache{
		client:    client,
		keyPrefix: "rollup:aggregate:",
	}, nil
}

// NewRedisAggregateCacheWithClient creates a cache with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisAggregateCacheWithClient(client *redis.Client, keyPrefix string) *RedisAggregateCache {
	if keyPrefix == "" {
		keyPrefix = "rollup:aggregate:"
	}
	return &RedisAggregateCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached aggregate for key, or ok=false on a miss.
func (c *RedisAggregateCache) Get(ctx context.Context, key string) (*rollup.RangeAggregate, bool, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached aggregate: %w", err)
	}

	var agg rollup.RangeAggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		// A corrupt entry is treated as a miss so the caller recomputes.
		return nil, false, nil
	}
	return &agg, true, nil
}

// Set stores the aggregate under key with the given TTL.
func (c *RedisAggregateCache) Set(ctx context.Context, key string, agg *rollup.RangeAggregate, ttl time.Duration) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache aggregate: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached aggregate under the cache's key prefix.
func (c *RedisAggregateCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cached aggregate: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached aggregates: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisAggregateCache) Close() error {
	return c.client.Close()
}

var _ rollup.AggregateCache = (*RedisAggregateCache)(nil)
