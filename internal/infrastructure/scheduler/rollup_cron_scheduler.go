package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	rollupapp "github.com/salesboard/backend/internal/application/rollup"
	"github.com/salesboard/backend/internal/domain/rollup"
	"go.uber.org/zap"
)

// cronTickerInterval is the interval at which the cron scheduler checks for execution
const cronTickerInterval = 1 * time.Minute

// RollupCronSchedulerConfig holds configuration for the nightly rollup sweep
type RollupCronSchedulerConfig struct {
	// Enabled indicates if the cron scheduler is enabled
	Enabled bool
	// CronHour is the hour (0-23) to run the nightly sweep
	CronHour int
	// CronMinute is the minute (0-59) to run the nightly sweep
	CronMinute int
	// DailyCronSchedule is the cron expression (parsed to extract hour/minute)
	DailyCronSchedule string
	// JobTimeout is the maximum time one sweep can run
	JobTimeout time.Duration
	// GapSweepDays is the trailing window the sweep inspects for missing days
	GapSweepDays int
	// Timezone anchors "yesterday" to the business day
	Timezone *time.Location
}

// DefaultRollupCronSchedulerConfig returns default scheduler configuration.
// Defaults to running at 2:00 AM daily over a 30 day trailing window.
func DefaultRollupCronSchedulerConfig() RollupCronSchedulerConfig {
	return RollupCronSchedulerConfig{
		Enabled:           true,
		CronHour:          2,
		CronMinute:        0,
		DailyCronSchedule: "0 2 * * *",
		JobTimeout:        30 * time.Minute,
		GapSweepDays:      30,
		Timezone:          time.UTC,
	}
}

// ParseCronSchedule parses a cron expression "minute hour * * *" to extract hour and minute.
// Returns defaults (2:00) if parsing fails or the expression is empty.
func ParseCronSchedule(cronExpr string) (hour, minute int, err error) {
	hour = 2
	minute = 0

	if cronExpr == "" {
		return hour, minute, nil
	}

	parts := strings.Fields(cronExpr)
	if len(parts) < 2 {
		return hour, minute, nil
	}

	if parts[0] != "*" {
		if val, parseErr := parseIntOrDefault(parts[0], 0); parseErr == nil {
			minute = val
		}
	}
	if parts[1] != "*" {
		if val, parseErr := parseIntOrDefault(parts[1], 2); parseErr == nil {
			hour = val
		}
	}

	if minute < 0 || minute > 59 {
		return 2, 0, fmt.Errorf("minute must be 0-59, got %d", minute)
	}
	if hour < 0 || hour > 23 {
		return 2, 0, fmt.Errorf("hour must be 0-23, got %d", hour)
	}

	return hour, minute, nil
}

// parseIntOrDefault parses an int string or returns default
func parseIntOrDefault(s string, defaultVal int) (int, error) {
	if s == "" || s == "*" {
		return defaultVal, nil
	}
	var val int
	for _, c := range s {
		if c < '0' || c > '9' {
			return defaultVal, ErrInvalidConfig
		}
		val = val*10 + int(c-'0')
	}
	return val, nil
}

// RollupCronScheduler runs the nightly rollup sweep: it rebuilds yesterday's
// bucket from fresh records, then repairs any gaps in the trailing window so
// days missed by outages converge without manual intervention.
type RollupCronScheduler struct {
	config   RollupCronSchedulerConfig
	backfill *rollupapp.BackfillService
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  bool

	now func() time.Time

	lastRunAt *time.Time
	nextRunAt *time.Time
}

// NewRollupCronScheduler creates a new nightly rollup scheduler
func NewRollupCronScheduler(
	config RollupCronSchedulerConfig,
	backfill *rollupapp.BackfillService,
	logger *zap.Logger,
) *RollupCronScheduler {
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.GapSweepDays < 1 {
		config.GapSweepDays = DefaultRollupCronSchedulerConfig().GapSweepDays
	}
	if config.DailyCronSchedule != "" {
		hour, minute, err := ParseCronSchedule(config.DailyCronSchedule)
		if err != nil {
			logger.Warn("Invalid daily cron schedule, falling back to defaults",
				zap.String("schedule", config.DailyCronSchedule),
				zap.Error(err),
			)
		}
		config.CronHour = hour
		config.CronMinute = minute
	}
	return &RollupCronScheduler{
		config:   config,
		backfill: backfill,
		logger:   logger,
		now:      time.Now,
	}
}

// Start starts the cron scheduler
func (s *RollupCronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.calculateNextRunTime()

	s.wg.Add(1)
	go s.cronLoop(ctx)

	s.logger.Info("Rollup cron scheduler started",
		zap.Int("cron_hour", s.config.CronHour),
		zap.Int("cron_minute", s.config.CronMinute),
		zap.Int("gap_sweep_days", s.config.GapSweepDays),
		zap.Timep("next_run_at", s.nextRunAt),
	)

	return nil
}

// Stop stops the cron scheduler
func (s *RollupCronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Rollup cron scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Rollup cron scheduler stop timed out")
		return ctx.Err()
	}
}

// cronLoop runs the main cron loop
func (s *RollupCronScheduler) cronLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(cronTickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.shouldRun(now.In(s.config.Timezone)) {
				s.RunSweep(ctx)
				s.calculateNextRunTime()
			}
		}
	}
}

// shouldRun checks if the cron should run at the given time
func (s *RollupCronScheduler) shouldRun(now time.Time) bool {
	return now.Hour() == s.config.CronHour && now.Minute() == s.config.CronMinute
}

// calculateNextRunTime calculates the next run time
func (s *RollupCronScheduler) calculateNextRunTime() {
	now := s.now().In(s.config.Timezone)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.CronHour, s.config.CronMinute, 0, 0, s.config.Timezone)

	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}

	s.mu.Lock()
	s.nextRunAt = &next
	s.mu.Unlock()
}

// RunSweep executes one nightly sweep. Yesterday is always rebuilt from
// fresh records; older days in the trailing window are built only if their
// buckets are missing.
func (s *RollupCronScheduler) RunSweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Warn("Skipping rollup sweep, previous sweep still running")
		return
	}
	s.sweeping = true
	now := s.now()
	s.lastRunAt = &now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	yesterday := rollup.NewDateKey(now.In(s.config.Timezone).AddDate(0, 0, -1), s.config.Timezone)

	s.logger.Info("Starting nightly rollup sweep", zap.String("yesterday", string(yesterday)))

	result, err := s.backfill.Backfill(ctx, []rollup.DateKey{yesterday}, true)
	if err != nil {
		s.logger.Error("Failed to rebuild yesterday's bucket", zap.Error(err))
	} else if len(result.Failed) > 0 {
		s.logger.Warn("Yesterday's rebuild did not complete",
			zap.String("date", string(yesterday)),
			zap.Any("errors", result.Errors),
		)
	}

	sweepStart := rollup.NewDateKey(
		now.In(s.config.Timezone).AddDate(0, 0, -s.config.GapSweepDays),
		s.config.Timezone,
	)
	window, err := rollup.NewDateRange(sweepStart, yesterday)
	if err != nil {
		s.logger.Error("Invalid gap sweep window", zap.Error(err))
		return
	}

	stillMissing, err := s.backfill.EnsureRange(ctx, window)
	if err != nil {
		s.logger.Error("Gap sweep failed", zap.Error(err))
		return
	}

	if len(stillMissing) > 0 {
		s.logger.Warn("Gap sweep left unrecovered days",
			zap.Int("count", len(stillMissing)),
			zap.Any("dates", stillMissing),
		)
	}

	s.logger.Info("Nightly rollup sweep finished",
		zap.String("window_start", string(window.Start)),
		zap.String("window_end", string(window.End)),
		zap.Int("unrecovered", len(stillMissing)),
	)
}

// TriggerManualRun triggers a manual sweep outside the cron schedule.
// Note: uses a background context to avoid premature cancellation when the
// triggering HTTP request completes.
func (s *RollupCronScheduler) TriggerManualRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	if s.sweeping {
		s.mu.Unlock()
		return ErrSweepAlreadyRunning
	}
	s.mu.Unlock()

	go s.RunSweep(context.Background())
	return nil
}

// GetStatus returns the current status of the cron scheduler
func (s *RollupCronScheduler) GetStatus() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":        s.config.Enabled,
		"is_running":     s.isRunning,
		"sweeping":       s.sweeping,
		"cron_hour":      s.config.CronHour,
		"cron_minute":    s.config.CronMinute,
		"gap_sweep_days": s.config.GapSweepDays,
		"last_run_at":    s.lastRunAt,
		"next_run_at":    s.nextRunAt,
	}
}

// GetNextRunAt returns when the next scheduled run will occur
func (s *RollupCronScheduler) GetNextRunAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunAt
}
