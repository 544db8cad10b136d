package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	rollupapp "github.com/salesboard/backend/internal/application/rollup"
	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/salesboard/backend/internal/infrastructure/scheduler"
	"github.com/salesboard/backend/internal/interfaces/http/dto"
)

// handlerRepo is a minimal in-memory bucket store.
type handlerRepo struct {
	mu      sync.Mutex
	buckets map[rollup.DateKey]*rollup.DailyBucket
}

func newHandlerRepo() *handlerRepo {
	return &handlerRepo{buckets: make(map[rollup.DateKey]*rollup.DailyBucket)}
}

func (r *handlerRepo) Get(_ context.Context, key rollup.DateKey) (*rollup.DailyBucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[key]
	if !ok {
		return nil, rollup.ErrBucketNotFound
	}
	return b, nil
}

func (r *handlerRepo) Put(_ context.Context, bucket *rollup.DailyBucket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[bucket.DateKey] = bucket
	return nil
}

func (r *handlerRepo) ListKeysInRange(_ context.Context, start, end rollup.DateKey) (map[rollup.DateKey]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	present := make(map[rollup.DateKey]struct{})
	for k := range r.buckets {
		if k >= start && k <= end {
			present[k] = struct{}{}
		}
	}
	return present, nil
}

// handlerSource serves one small order per requested day.
type handlerSource struct{}

func (s *handlerSource) FetchOrders(_ context.Context, dayStart, _ time.Time) ([]rollup.RawOrder, error) {
	return []rollup.RawOrder{{
		ID:         "order-" + dayStart.Format("2006-01-02"),
		Timestamp:  dayStart.Add(10 * time.Hour),
		Total:      decimal.NewFromInt(50),
		Channel:    rollup.ChannelDirect,
		AgentID:    "agent-1",
		CustomerID: "cust-1",
		LineItems: []rollup.OrderLineItem{{
			ItemID:    "item-1",
			Name:      "Widget",
			BrandID:   "brand-1",
			Quantity:  1,
			LineTotal: decimal.NewFromInt(50),
		}},
	}}, nil
}

func (s *handlerSource) FetchInvoices(_ context.Context, _, _ time.Time) ([]rollup.RawInvoice, error) {
	return nil, nil
}

func (s *handlerSource) FetchOrderLineItems(_ context.Context, _ string) ([]rollup.OrderLineItem, error) {
	return nil, nil
}

func (s *handlerSource) FetchOpenInvoices(_ context.Context, _ string) ([]rollup.RawInvoice, error) {
	return nil, nil
}

// fakeAggregator returns a canned aggregate or error.
type fakeAggregator struct {
	agg *rollup.RangeAggregate
	err error
}

func (f *fakeAggregator) RangeAggregate(_ context.Context, _ rollup.DateRange) (*rollup.RangeAggregate, error) {
	return f.agg, f.err
}

type fakeSweeper struct {
	err   error
	calls int
}

func (f *fakeSweeper) TriggerManualRun(_ context.Context) error {
	f.calls++
	return f.err
}

func newRollupRouter(t *testing.T, agg RangeAggregator, repo rollup.BucketRepository, sweeper Sweeper) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	builder := rollupapp.NewBucketBuilder(&handlerSource{}, repo, rollupapp.BuilderConfig{}, logger)
	backfill := rollupapp.NewBackfillService(repo, builder, rollupapp.BackfillConfig{}, logger)

	h := NewRollupHandler(agg, backfill, sweeper)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func decodeResponse(t *testing.T, body *bytes.Buffer) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(body.Bytes(), &resp))
	return resp
}

func TestGetRangeAggregate(t *testing.T) {
	agg := rollup.CombineBuckets("2025-03-01", "2025-03-03", nil)
	router := newRollupRouter(t, &fakeAggregator{agg: agg}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rollups/range?start=2025-03-01&end=2025-03-03", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	assert.True(t, resp.Success)
}

func TestGetRangeAggregateRequiresBounds(t *testing.T) {
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rollups/range?start=2025-03-01", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRangeAggregateRejectsInvertedRange(t *testing.T) {
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rollups/range?start=2025-03-05&end=2025-03-01", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w.Body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidationRange, resp.Error.Code)
}

func TestGetRangeAggregateReportsIncompleteData(t *testing.T) {
	incomplete := &rollup.BackfillIncompleteError{Missing: []rollup.DateKey{"2025-03-02"}}
	router := newRollupRouter(t, &fakeAggregator{err: incomplete}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rollups/range?start=2025-03-01&end=2025-03-03", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w.Body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeDataIncomplete, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "2025-03-02")
}

func TestGetMissingDates(t *testing.T) {
	repo := newHandlerRepo()
	seedBucket(t, repo, "2025-03-01")
	seedBucket(t, repo, "2025-03-03")
	router := newRollupRouter(t, &fakeAggregator{}, repo, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rollups/missing?start=2025-03-01&end=2025-03-03", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
	assert.Equal(t, []interface{}{"2025-03-02"}, data["missing"])
}

func TestPostBackfillSkipsExistingUnlessForced(t *testing.T) {
	repo := newHandlerRepo()
	seedBucket(t, repo, "2025-03-01")
	router := newRollupRouter(t, &fakeAggregator{}, repo, nil)

	body := `{"start":"2025-03-01","end":"2025-03-02"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/backfill", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"2025-03-02"}, data["succeeded"])
	assert.Equal(t, []interface{}{"2025-03-01"}, data["skipped"])
}

func TestPostBackfillRejectsBadBody(t *testing.T) {
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/backfill", bytes.NewBufferString(`{"start":1}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w.Body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
}

func TestPostRebuildReplacesExistingBuckets(t *testing.T) {
	repo := newHandlerRepo()
	seedBucket(t, repo, "2025-03-01")
	router := newRollupRouter(t, &fakeAggregator{}, repo, nil)

	body := `{"dates":["2025-03-01"]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/rebuild", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w.Body)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"2025-03-01"}, data["succeeded"])

	rebuilt, err := repo.Get(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rebuilt.TotalOrders)
}

func TestPostRebuildRejectsMalformedDate(t *testing.T) {
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), nil)

	body := `{"dates":["03/01/2025"]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/rebuild", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w.Body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidationFormat, resp.Error.Code)
}

func TestPostSweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), sweeper)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/sweep", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, sweeper.calls)
}

func TestPostSweepConflictWhileRunning(t *testing.T) {
	sweeper := &fakeSweeper{err: scheduler.ErrSweepAlreadyRunning}
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), sweeper)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/sweep", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPostSweepWithoutScheduler(t *testing.T) {
	router := newRollupRouter(t, &fakeAggregator{}, newHandlerRepo(), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rollups/sweep", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedBucket(t *testing.T, repo rollup.BucketRepository, key rollup.DateKey) {
	t.Helper()
	require.NoError(t, repo.Put(context.Background(), rollup.NewDailyBucket(key)))
}
