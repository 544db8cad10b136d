package cache

import (
	"fmt"

	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/salesboard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// AggregateCacheFactory creates aggregate caches based on configuration
type AggregateCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// AggregateCacheFactoryOption is a functional option for configuring the factory
type AggregateCacheFactoryOption func(*AggregateCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) AggregateCacheFactoryOption {
	return func(f *AggregateCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) AggregateCacheFactoryOption {
	return func(f *AggregateCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewAggregateCacheFactory creates a new factory
func NewAggregateCacheFactory(cfg config.RedisConfig, opts ...AggregateCacheFactoryOption) *AggregateCacheFactory {
	f := &AggregateCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-based aggregate cache
func (f *AggregateCacheFactory) CreateRedisCache() (rollup.AggregateCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	cache, err := NewRedisAggregateCache(redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis aggregate cache: %w", err)
	}

	return cache, nil
}

// CreateInMemoryCache creates an in-memory aggregate cache.
// WARNING: in-memory caches do not share state across process instances,
// so each instance recomputes its own range aggregates.
func (f *AggregateCacheFactory) CreateInMemoryCache() rollup.AggregateCache {
	return NewInMemoryAggregateCache()
}

// CreateCache creates an aggregate cache based on whether Redis is
// available. It tries Redis first, and falls back to in-memory if Redis is
// not available and AllowInMemoryFallback is true.
func (f *AggregateCacheFactory) CreateCache() (rollup.AggregateCache, error) {
	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis aggregate cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for aggregate cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory aggregate cache. "+
		"Each instance will recompute its own range aggregates.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
