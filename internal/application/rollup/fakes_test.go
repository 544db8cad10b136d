package rollup

import (
	"context"
	"sync"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
)

// fakeSource serves canned records per date key and counts calls.
type fakeSource struct {
	mu sync.Mutex

	ordersByDay   map[rollup.DateKey][]rollup.RawOrder
	invoicesByDay map[rollup.DateKey][]rollup.RawInvoice
	lineItems     map[string][]rollup.OrderLineItem
	openInvoices  []rollup.RawInvoice

	failOrders    map[rollup.DateKey]error
	failLineItems map[string]error

	orderCalls    int
	lineItemCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ordersByDay:   make(map[rollup.DateKey][]rollup.RawOrder),
		invoicesByDay: make(map[rollup.DateKey][]rollup.RawInvoice),
		lineItems:     make(map[string][]rollup.OrderLineItem),
		failOrders:    make(map[rollup.DateKey]error),
		failLineItems: make(map[string]error),
	}
}

func (f *fakeSource) dayKey(dayStart time.Time) rollup.DateKey {
	return rollup.NewDateKey(dayStart, time.UTC)
}

func (f *fakeSource) FetchOrders(ctx context.Context, dayStart, dayEnd time.Time) ([]rollup.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	key := f.dayKey(dayStart)
	if err := f.failOrders[key]; err != nil {
		return nil, err
	}
	return f.ordersByDay[key], nil
}

func (f *fakeSource) FetchInvoices(ctx context.Context, dayStart, dayEnd time.Time) ([]rollup.RawInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invoicesByDay[f.dayKey(dayStart)], nil
}

func (f *fakeSource) FetchOrderLineItems(ctx context.Context, orderID string) ([]rollup.OrderLineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineItemCalls++
	if err := f.failLineItems[orderID]; err != nil {
		return nil, err
	}
	// Orders without canned detail simply have no line items.
	return f.lineItems[orderID], nil
}

func (f *fakeSource) FetchOpenInvoices(ctx context.Context, agentID string) ([]rollup.RawInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openInvoices, nil
}

// fakeRepo is an in-memory bucket store.
type fakeRepo struct {
	mu      sync.Mutex
	buckets map[rollup.DateKey]*rollup.DailyBucket
	puts    int
	putErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{buckets: make(map[rollup.DateKey]*rollup.DailyBucket)}
}

func (r *fakeRepo) Get(ctx context.Context, key rollup.DateKey) (*rollup.DailyBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		return nil, rollup.ErrBucketNotFound
	}
	return b, nil
}

func (r *fakeRepo) Put(ctx context.Context, bucket *rollup.DailyBucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.putErr != nil {
		return r.putErr
	}
	r.buckets[bucket.DateKey] = bucket
	return nil
}

func (r *fakeRepo) ListKeysInRange(ctx context.Context, start, end rollup.DateKey) (map[rollup.DateKey]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make(map[rollup.DateKey]struct{})
	for key := range r.buckets {
		if !key.Before(start) && !end.Before(key) {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

// fakeAggregateCache counts invalidations; reads and writes are no-ops.
type fakeAggregateCache struct {
	mu            sync.Mutex
	invalidations int
}

func (c *fakeAggregateCache) Get(ctx context.Context, key string) (*rollup.RangeAggregate, bool, error) {
	return nil, false, nil
}

func (c *fakeAggregateCache) Set(ctx context.Context, key string, agg *rollup.RangeAggregate, ttl time.Duration) error {
	return nil
}

func (c *fakeAggregateCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	return nil
}
