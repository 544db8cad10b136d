package dashboard

import (
	"context"
	"fmt"
	"time"

	rollupapp "github.com/salesboard/backend/internal/application/rollup"
	"github.com/salesboard/backend/internal/domain/rollup"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const tracerName = "salesboard/dashboard"

// Stage names the assembler's pipeline stages; errors carry the stage that
// produced them.
type Stage string

const (
	StageResolvingRange Stage = "resolving_range"
	StageDetectingGaps  Stage = "detecting_gaps"
	StageBackfilling    Stage = "backfilling"
	StageCombining      Stage = "combining"
	StageProjecting     Stage = "projecting"
	StageDone           Stage = "done"
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dashboard %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config holds assembler tunables.
type Config struct {
	// Timezone for resolving named ranges into business days.
	Timezone *time.Location
	// CacheTTL bounds how stale a served range aggregate may be. Zero
	// disables caching.
	CacheTTL time.Duration
}

// DashboardView is the role-projected response for one dashboard request.
type DashboardView struct {
	Role       Role           `json:"role"`
	AgentScope string         `json:"agent_scope,omitempty"`
	RangeStart rollup.DateKey `json:"range_start"`
	RangeEnd   rollup.DateKey `json:"range_end"`

	Totals      rollup.RangeTotals      `json:"totals"`
	ByAgent     []rollup.AgentRangeStat `json:"by_agent"`
	ByBrand     []rollup.BrandRangeStat `json:"by_brand,omitempty"`
	TopItems    []rollup.ItemRangeStat  `json:"top_items,omitempty"`
	DailySeries []rollup.DailyPoint     `json:"daily_series"`

	// UniqueCustomersApproximate is always true: the range figure sums
	// per-day cardinalities and over-counts repeat customers.
	UniqueCustomersApproximate bool `json:"unique_customers_approximate"`

	// MissingDates lists days whose buckets could not be built in time for
	// this response. Empty means the range is complete.
	MissingDates []rollup.DateKey `json:"missing_dates,omitempty"`

	// OpenInvoices is the agent view's near-real-time overlay, fetched
	// fresh rather than rolled up.
	OpenInvoices []rollup.RawInvoice `json:"open_invoices,omitempty"`
}

// Assembler resolves a date range, ensures its buckets exist, combines them
// and projects a role-specific view.
type Assembler struct {
	backfill *rollupapp.BackfillService
	repo     rollup.BucketRepository
	source   rollup.RecordSource
	cache    rollup.AggregateCache
	config   Config
	logger   *zap.Logger

	now func() time.Time
}

// NewAssembler creates an assembler with injected collaborators. cache may
// be nil to disable aggregate caching.
func NewAssembler(
	backfill *rollupapp.BackfillService,
	repo rollup.BucketRepository,
	source rollup.RecordSource,
	cache rollup.AggregateCache,
	config Config,
	logger *zap.Logger,
) *Assembler {
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	return &Assembler{
		backfill: backfill,
		repo:     repo,
		source:   source,
		cache:    cache,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// RangeAggregate is the exposed combine operation: it ensures the range is
// complete and returns its aggregate. When backfill cannot complete the
// range it fails with BackfillIncompleteError carrying the unrecovered
// dates.
func (a *Assembler) RangeAggregate(ctx context.Context, r rollup.DateRange) (*rollup.RangeAggregate, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dashboard.RangeAggregate")
	defer span.End()

	if agg, ok := a.cachedAggregate(ctx, r); ok {
		return agg, nil
	}

	stillMissing, err := a.backfill.EnsureRange(ctx, r)
	if err != nil {
		return nil, &StageError{Stage: StageBackfilling, Err: err}
	}
	if len(stillMissing) > 0 {
		return nil, &rollup.BackfillIncompleteError{Missing: stillMissing}
	}

	agg, _, err := a.combine(ctx, r)
	if err != nil {
		return nil, err
	}

	a.storeAggregate(ctx, r, agg)
	return agg, nil
}

// Dashboard runs the full pipeline for one viewer. Partial backfill does
// not fail the request: the view is served with MissingDates set so
// incompleteness is explicit, never silent.
func (a *Assembler) Dashboard(ctx context.Context, viewer Viewer, sel RangeSelector) (*DashboardView, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dashboard.Assemble")
	defer span.End()

	r, err := sel.Resolve(a.now(), a.config.Timezone)
	if err != nil {
		return nil, &StageError{Stage: StageResolvingRange, Err: err}
	}

	stillMissing, err := a.backfill.EnsureRange(ctx, r)
	if err != nil {
		return nil, &StageError{Stage: StageBackfilling, Err: err}
	}

	agg, loaded, err := a.combine(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(stillMissing) == 0 && loaded == r.Days() {
		a.storeAggregate(ctx, r, agg)
	}

	view, err := a.project(ctx, viewer, agg, stillMissing)
	if err != nil {
		return nil, &StageError{Stage: StageProjecting, Err: err}
	}

	a.logger.Debug("Dashboard assembled",
		zap.String("role", string(viewer.Role)),
		zap.String("start", string(r.Start)),
		zap.String("end", string(r.End)),
		zap.Int("missing_dates", len(view.MissingDates)),
		zap.String("stage", string(StageDone)),
	)

	return view, nil
}

// combine loads whatever buckets exist in r and folds them. It returns the
// number of buckets loaded so callers can tell a complete range from a
// flagged-partial one.
func (a *Assembler) combine(ctx context.Context, r rollup.DateRange) (*rollup.RangeAggregate, int, error) {
	existing, err := a.repo.ListKeysInRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, 0, &StageError{Stage: StageDetectingGaps, Err: err}
	}

	buckets := make([]*rollup.DailyBucket, 0, len(existing))
	for _, key := range r.Keys() {
		if _, ok := existing[key]; !ok {
			continue
		}
		b, err := a.repo.Get(ctx, key)
		if err != nil {
			return nil, 0, &StageError{Stage: StageCombining, Err: err}
		}
		buckets = append(buckets, b)
	}

	return rollup.CombineBuckets(r.Start, r.End, buckets), len(buckets), nil
}

// project applies the role-specific view. The switch is exhaustive over the
// viewer variants resolved at the boundary.
func (a *Assembler) project(ctx context.Context, viewer Viewer, agg *rollup.RangeAggregate, missing []rollup.DateKey) (*DashboardView, error) {
	view := &DashboardView{
		Role:                       viewer.Role,
		RangeStart:                 agg.RangeStart,
		RangeEnd:                   agg.RangeEnd,
		Totals:                     agg.Totals,
		DailySeries:                agg.DailySeries,
		UniqueCustomersApproximate: true,
		MissingDates:               missing,
	}

	switch viewer.Role {
	case RoleManager:
		view.ByAgent = agg.ByAgent
		view.ByBrand = agg.ByBrand
		view.TopItems = agg.TopItems

	case RoleAgent:
		view.AgentScope = viewer.AgentID
		view.ByAgent = []rollup.AgentRangeStat{}
		for _, stat := range agg.ByAgent {
			if stat.AgentID == viewer.AgentID {
				view.ByAgent = append(view.ByAgent, stat)
				break
			}
		}

		// Open invoice state moves faster than the daily cadence, so the
		// overlay is fetched fresh instead of read from buckets.
		open, err := a.source.FetchOpenInvoices(ctx, viewer.AgentID)
		if err != nil {
			return nil, err
		}
		view.OpenInvoices = open

	default:
		return nil, fmt.Errorf("unhandled viewer role %q", viewer.Role)
	}

	return view, nil
}

func (a *Assembler) cacheKey(r rollup.DateRange) string {
	return fmt.Sprintf("range:%s:%s", r.Start, r.End)
}

func (a *Assembler) cachedAggregate(ctx context.Context, r rollup.DateRange) (*rollup.RangeAggregate, bool) {
	if a.cache == nil || a.config.CacheTTL <= 0 {
		return nil, false
	}
	agg, ok, err := a.cache.Get(ctx, a.cacheKey(r))
	if err != nil {
		// A broken cache degrades to recompute, never to failure.
		a.logger.Warn("Aggregate cache read failed", zap.Error(err))
		return nil, false
	}
	return agg, ok
}

func (a *Assembler) storeAggregate(ctx context.Context, r rollup.DateRange, agg *rollup.RangeAggregate) {
	if a.cache == nil || a.config.CacheTTL <= 0 {
		return
	}
	if err := a.cache.Set(ctx, a.cacheKey(r), agg, a.config.CacheTTL); err != nil {
		a.logger.Warn("Aggregate cache write failed", zap.Error(err))
	}
}
