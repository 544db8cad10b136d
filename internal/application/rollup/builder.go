package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const tracerName = "salesboard/rollup"

// BuilderConfig holds tunables for the daily bucket builder.
type BuilderConfig struct {
	// Timezone defines business-day boundaries.
	Timezone *time.Location
	// LineItemConcurrency caps the fan-out of per-order line-item fetches.
	LineItemConcurrency int
	// BuildTimeout bounds one day's build end to end. On expiry the day is
	// failed whole; nothing partial is persisted.
	BuildTimeout time.Duration
}

// DefaultBuilderConfig returns builder defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Timezone:            time.UTC,
		LineItemConcurrency: 5,
		BuildTimeout:        2 * time.Minute,
	}
}

// BucketBuilder computes and persists one DailyBucket per calendar day.
//
// Builds for the same date key are collapsed through a single-flight guard:
// two callers racing on one day share one fetch-fold-persist pass. There is
// no merge path — every persisted bucket is a whole-document replace.
type BucketBuilder struct {
	source rollup.RecordSource
	repo   rollup.BucketRepository
	config BuilderConfig
	logger *zap.Logger

	group singleflight.Group
}

// NewBucketBuilder creates a builder with injected collaborators.
func NewBucketBuilder(source rollup.RecordSource, repo rollup.BucketRepository, config BuilderConfig, logger *zap.Logger) *BucketBuilder {
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.LineItemConcurrency <= 0 {
		config.LineItemConcurrency = DefaultBuilderConfig().LineItemConcurrency
	}
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = DefaultBuilderConfig().BuildTimeout
	}
	return &BucketBuilder{
		source: source,
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// BuildDay computes the bucket for key from raw records and persists it.
// A fetch failure or timeout aborts the whole day; the store is untouched.
func (b *BucketBuilder) BuildDay(ctx context.Context, key rollup.DateKey) (*rollup.DailyBucket, error) {
	result, err, shared := b.group.Do(string(key), func() (interface{}, error) {
		return b.buildDay(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.Debug("Bucket build shared via single-flight", zap.String("date", string(key)))
	}
	return result.(*rollup.DailyBucket), nil
}

func (b *BucketBuilder) buildDay(ctx context.Context, key rollup.DateKey) (*rollup.DailyBucket, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BuildTimeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rollup.BuildDay")
	defer span.End()

	started := time.Now()
	dayStart, dayEnd := key.DayWindow(b.config.Timezone)

	var orders []rollup.RawOrder
	var invoices []rollup.RawInvoice

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = b.source.FetchOrders(gctx, dayStart, dayEnd)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = b.source.FetchInvoices(gctx, dayStart, dayEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch day %s: %w", key, err)
	}

	if err := b.hydrateLineItems(ctx, orders); err != nil {
		return nil, fmt.Errorf("fetch line items for %s: %w", key, err)
	}

	bucket := rollup.BuildDailyBucket(key, orders, invoices)

	if err := b.repo.Put(ctx, bucket); err != nil {
		return nil, fmt.Errorf("persist bucket %s: %w", key, err)
	}

	b.logger.Info("Daily bucket built",
		zap.String("date", string(key)),
		zap.Int64("orders", bucket.TotalOrders),
		zap.Int64("invoices", bucket.InvoicesCreated),
		zap.Int64("malformed", bucket.MalformedRecords),
		zap.Duration("took", time.Since(started)),
	)

	return bucket, nil
}

// hydrateLineItems fetches detail for orders that arrived without embedded
// line items, under the configured concurrency ceiling. Any fetch failure
// fails the day.
func (b *BucketBuilder) hydrateLineItems(ctx context.Context, orders []rollup.RawOrder) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.LineItemConcurrency)

	for i := range orders {
		if len(orders[i].LineItems) > 0 || orders[i].ID == "" {
			continue
		}
		idx := i
		g.Go(func() error {
			items, err := b.source.FetchOrderLineItems(gctx, orders[idx].ID)
			if err != nil {
				return err
			}
			orders[idx].LineItems = items
			return nil
		})
	}

	return g.Wait()
}
