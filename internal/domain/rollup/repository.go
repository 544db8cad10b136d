package rollup

import (
	"context"
	"time"
)

// BucketRepository is the durable store for daily buckets, keyed by
// calendar date. Put is an atomic whole-document replace.
type BucketRepository interface {
	// Get returns the bucket for key, or ErrBucketNotFound.
	Get(ctx context.Context, key DateKey) (*DailyBucket, error)

	// Put stores the bucket under its date key, replacing any existing
	// document for that day in full.
	Put(ctx context.Context, bucket *DailyBucket) error

	// ListKeysInRange returns the set of date keys in [start, end] that
	// have a stored bucket.
	ListKeysInRange(ctx context.Context, start, end DateKey) (map[DateKey]struct{}, error)
}

// RecordSource supplies raw transactional records for a day window. The day
// bounds are inclusive on both ends. Implementations surface
// TransientFetchError or FatalFetchError per the fetch-error taxonomy.
type RecordSource interface {
	FetchOrders(ctx context.Context, dayStart, dayEnd time.Time) ([]RawOrder, error)
	FetchInvoices(ctx context.Context, dayStart, dayEnd time.Time) ([]RawInvoice, error)

	// FetchOrderLineItems returns line-item detail for one order when the
	// order payload did not embed it.
	FetchOrderLineItems(ctx context.Context, orderID string) ([]OrderLineItem, error)

	// FetchOpenInvoices returns currently open invoices, optionally scoped
	// to one agent. This is near-real-time state and is never rolled up.
	FetchOpenInvoices(ctx context.Context, agentID string) ([]RawInvoice, error)
}

// AggregateCache is a short-TTL cache for range aggregates. A miss returns
// ok=false with a nil error.
type AggregateCache interface {
	Get(ctx context.Context, key string) (*RangeAggregate, bool, error)
	Set(ctx context.Context, key string, agg *RangeAggregate, ttl time.Duration) error

	// InvalidateAll drops every cached aggregate. Keys name opaque date
	// ranges, so after a bucket is rebuilt in place there is no way to
	// enumerate just the ranges that contain it.
	InvalidateAll(ctx context.Context) error
}
