package rollup

import (
	"context"
	"sort"
	"sync"

	"github.com/salesboard/backend/internal/domain/rollup"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BackfillConfig holds tunables for backfill runs.
type BackfillConfig struct {
	// Concurrency caps how many days may build in parallel. The default of
	// 1 processes dates sequentially in ascending order.
	Concurrency int
}

// BackfillResult reports the outcome of one backfill run. A run with failed
// dates is a resumable partial success, not a hard failure; a later gap
// detection pass re-discovers whatever is still missing.
type BackfillResult struct {
	Succeeded []rollup.DateKey          `json:"succeeded"`
	Failed    []rollup.DateKey          `json:"failed"`
	Skipped   []rollup.DateKey          `json:"skipped"`
	Errors    map[rollup.DateKey]string `json:"errors,omitempty"`
}

// BackfillService detects missing daily buckets and drives the builder over
// them.
type BackfillService struct {
	repo    rollup.BucketRepository
	builder *BucketBuilder
	cache   rollup.AggregateCache
	config  BackfillConfig
	logger  *zap.Logger
}

// NewBackfillService creates a backfill service.
func NewBackfillService(repo rollup.BucketRepository, builder *BucketBuilder, config BackfillConfig, logger *zap.Logger) *BackfillService {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &BackfillService{
		repo:    repo,
		builder: builder,
		config:  config,
		logger:  logger,
	}
}

// WithAggregateCache registers the cache to drop after force rebuilds, so
// readers never combine a stale cached aggregate with rebuilt buckets.
func (s *BackfillService) WithAggregateCache(cache rollup.AggregateCache) *BackfillService {
	s.cache = cache
	return s
}

// MissingDates returns, in ascending order, every calendar date in r with
// no stored bucket. One existing-keys query covers the whole range.
func (s *BackfillService) MissingDates(ctx context.Context, r rollup.DateRange) ([]rollup.DateKey, error) {
	existing, err := s.repo.ListKeysInRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	var missing []rollup.DateKey
	for _, key := range r.Keys() {
		if _, ok := existing[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

// Backfill builds buckets for the given dates in ascending order. Dates
// that already have a bucket are skipped unless force is set. A single
// day's failure is recorded and the run continues — except on a fatal
// fetch error, which marks every remaining date failed and stops the run.
//
// Safe to re-invoke: a second run over the same dates rebuilds nothing
// that succeeded the first time (absent force).
func (s *BackfillService) Backfill(ctx context.Context, dates []rollup.DateKey, force bool) (*BackfillResult, error) {
	result := &BackfillResult{
		Succeeded: []rollup.DateKey{},
		Failed:    []rollup.DateKey{},
		Skipped:   []rollup.DateKey{},
		Errors:    make(map[rollup.DateKey]string),
	}
	if len(dates) == 0 {
		return result, nil
	}

	ordered := make([]rollup.DateKey, len(dates))
	copy(ordered, dates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	existing, err := s.existingKeys(ctx, ordered)
	if err != nil {
		return nil, err
	}

	var todo []rollup.DateKey
	for _, key := range ordered {
		if _, ok := existing[key]; ok && !force {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		todo = append(todo, key)
	}

	if s.config.Concurrency > 1 {
		s.runParallel(ctx, todo, result)
	} else {
		s.runSequential(ctx, todo, result)
	}

	if force && len(result.Succeeded) > 0 && s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("Aggregate cache invalidation failed", zap.Error(err))
		}
	}

	s.logger.Info("Backfill run finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)),
	)

	return result, nil
}

// EnsureRange makes the range complete: it detects gaps, backfills them
// synchronously, and returns whatever dates are still missing afterwards.
func (s *BackfillService) EnsureRange(ctx context.Context, r rollup.DateRange) ([]rollup.DateKey, error) {
	missing, err := s.MissingDates(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return nil, nil
	}

	s.logger.Info("Backfilling gaps before combine",
		zap.String("start", string(r.Start)),
		zap.String("end", string(r.End)),
		zap.Int("missing", len(missing)),
	)

	result, err := s.Backfill(ctx, missing, false)
	if err != nil {
		return nil, err
	}
	return result.Failed, nil
}

func (s *BackfillService) runSequential(ctx context.Context, dates []rollup.DateKey, result *BackfillResult) {
	for i, key := range dates {
		if _, err := s.builder.BuildDay(ctx, key); err != nil {
			s.recordFailure(result, key, err)

			if rollup.IsFatalFetch(err) {
				// Not retryable within this run; fail the remainder so the
				// caller sees the full unrecovered set.
				for _, rest := range dates[i+1:] {
					result.Failed = append(result.Failed, rest)
					result.Errors[rest] = "run aborted by fatal fetch error"
				}
				s.logger.Error("Backfill aborted", zap.String("date", string(key)), zap.Error(err))
				return
			}
			continue
		}
		result.Succeeded = append(result.Succeeded, key)
	}
}

func (s *BackfillService) runParallel(ctx context.Context, dates []rollup.DateKey, result *BackfillResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, key := range dates {
		key := key
		g.Go(func() error {
			_, err := s.builder.BuildDay(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.recordFailure(result, key, err)
				// Per-day failures never cancel sibling builds.
				return nil
			}
			result.Succeeded = append(result.Succeeded, key)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Succeeded, func(i, j int) bool { return result.Succeeded[i].Before(result.Succeeded[j]) })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Before(result.Failed[j]) })
}

func (s *BackfillService) recordFailure(result *BackfillResult, key rollup.DateKey, err error) {
	result.Failed = append(result.Failed, key)
	result.Errors[key] = err.Error()
	s.logger.Warn("Day build failed during backfill",
		zap.String("date", string(key)),
		zap.Bool("transient", rollup.IsTransientFetch(err)),
		zap.Error(err),
	)
}

// existingKeys covers the dates with as few range queries as the date set
// allows; for a contiguous run this is one query.
func (s *BackfillService) existingKeys(ctx context.Context, ordered []rollup.DateKey) (map[rollup.DateKey]struct{}, error) {
	return s.repo.ListKeysInRange(ctx, ordered[0], ordered[len(ordered)-1])
}
