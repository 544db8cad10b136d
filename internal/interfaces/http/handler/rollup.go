package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	rollupapp "github.com/salesboard/backend/internal/application/rollup"
	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/salesboard/backend/internal/infrastructure/scheduler"
	"github.com/salesboard/backend/internal/interfaces/http/dto"
)

// Sweeper triggers an out-of-schedule rollup sweep
type Sweeper interface {
	TriggerManualRun(ctx context.Context) error
}

// RollupHandler exposes the rollup engine: range aggregates, gap listings,
// and manual backfills
type RollupHandler struct {
	BaseHandler
	assembler RangeAggregator
	backfill  *rollupapp.BackfillService
	sweeper   Sweeper
}

// RangeAggregator produces a combined aggregate for a complete date range
type RangeAggregator interface {
	RangeAggregate(ctx context.Context, r rollup.DateRange) (*rollup.RangeAggregate, error)
}

// NewRollupHandler creates a new RollupHandler. sweeper may be nil when the
// scheduler is disabled.
func NewRollupHandler(assembler RangeAggregator, backfill *rollupapp.BackfillService, sweeper Sweeper) *RollupHandler {
	return &RollupHandler{
		assembler: assembler,
		backfill:  backfill,
		sweeper:   sweeper,
	}
}

// rangeQuery carries explicit inclusive date bounds
type rangeQuery struct {
	Start string `form:"start" binding:"required"`
	End   string `form:"end" binding:"required"`
}

func (h *RollupHandler) bindRange(c *gin.Context) (rollup.DateRange, bool) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, "start and end query parameters are required")
		return rollup.DateRange{}, false
	}
	r, err := parseRange(q.Start, q.End)
	if err != nil {
		h.HandleError(c, err)
		return rollup.DateRange{}, false
	}
	return r, true
}

func parseRange(start, end string) (rollup.DateRange, error) {
	s, err := rollup.ParseDateKey(start)
	if err != nil {
		return rollup.DateRange{}, err
	}
	e, err := rollup.ParseDateKey(end)
	if err != nil {
		return rollup.DateRange{}, err
	}
	return rollup.NewDateRange(s, e)
}

// GetRangeAggregate godoc
// @ID           getRollupRange
// @Summary      Get a combined range aggregate
// @Description  Builds any missing daily buckets, then combines the range into
// @Description  one aggregate
// @Tags         rollups
// @Produce      json
// @Param        start query string true "Inclusive start date (YYYY-MM-DD)"
// @Param        end   query string true "Inclusive end date (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[rollup.RangeAggregate]
// @Failure      400 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /rollups/range [get]
func (h *RollupHandler) GetRangeAggregate(c *gin.Context) {
	r, ok := h.bindRange(c)
	if !ok {
		return
	}

	agg, err := h.assembler.RangeAggregate(c.Request.Context(), r)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, agg)
}

// MissingDatesResponse lists the gap dates inside a range
type MissingDatesResponse struct {
	Start   rollup.DateKey   `json:"start"`
	End     rollup.DateKey   `json:"end"`
	Missing []rollup.DateKey `json:"missing"`
	Count   int              `json:"count"`
}

// GetMissingDates godoc
// @ID           getRollupMissing
// @Summary      List missing bucket dates in a range
// @Description  Detects calendar days in the range with no stored daily bucket
// @Tags         rollups
// @Produce      json
// @Param        start query string true "Inclusive start date (YYYY-MM-DD)"
// @Param        end   query string true "Inclusive end date (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[MissingDatesResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /rollups/missing [get]
func (h *RollupHandler) GetMissingDates(c *gin.Context) {
	r, ok := h.bindRange(c)
	if !ok {
		return
	}

	missing, err := h.backfill.MissingDates(c.Request.Context(), r)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, MissingDatesResponse{
		Start:   r.Start,
		End:     r.End,
		Missing: missing,
		Count:   len(missing),
	})
}

// BackfillRequest asks for buckets to be built across a range
type BackfillRequest struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
	Force bool   `json:"force"`
}

// PostBackfill godoc
// @ID           postRollupBackfill
// @Summary      Backfill daily buckets for a range
// @Description  Builds buckets for every day in the range. Existing buckets
// @Description  are skipped unless force is set.
// @Tags         rollups
// @Accept       json
// @Produce      json
// @Param        request body BackfillRequest true "Backfill range"
// @Success      200 {object} APIResponse[rollupapp.BackfillResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /rollups/backfill [post]
func (h *RollupHandler) PostBackfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid backfill request body")
		return
	}

	r, err := parseRange(req.Start, req.End)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.backfill.Backfill(c.Request.Context(), r.Keys(), req.Force)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// RebuildRequest names individual dates whose buckets must be rebuilt
type RebuildRequest struct {
	Dates []string `json:"dates" binding:"required,min=1"`
}

// PostRebuild godoc
// @ID           postRollupRebuild
// @Summary      Force-rebuild buckets for specific dates
// @Description  Refetches and replaces the bucket for each named date, even if
// @Description  one already exists
// @Tags         rollups
// @Accept       json
// @Produce      json
// @Param        request body RebuildRequest true "Dates to rebuild"
// @Success      200 {object} APIResponse[rollupapp.BackfillResult]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /rollups/rebuild [post]
func (h *RollupHandler) PostRebuild(c *gin.Context) {
	var req RebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid rebuild request body")
		return
	}

	keys := make([]rollup.DateKey, 0, len(req.Dates))
	for _, raw := range req.Dates {
		key, err := rollup.ParseDateKey(raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		keys = append(keys, key)
	}

	result, err := h.backfill.Backfill(c.Request.Context(), keys, true)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// PostSweep godoc
// @ID           postRollupSweep
// @Summary      Trigger the nightly sweep now
// @Description  Runs the scheduled rebuild-and-gap-fill sweep out of schedule
// @Tags         rollups
// @Produce      json
// @Success      202 {object} SuccessResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /rollups/sweep [post]
func (h *RollupHandler) PostSweep(c *gin.Context) {
	if h.sweeper == nil {
		h.BadRequest(c, "Scheduler is disabled")
		return
	}

	if err := h.sweeper.TriggerManualRun(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrSweepAlreadyRunning):
			h.Error(c, http.StatusConflict, dto.ErrCodeBadRequest, "A sweep is already running")
		case errors.Is(err, scheduler.ErrSchedulerNotRunning):
			h.BadRequest(c, "Scheduler is not running")
		default:
			h.InternalError(c, "Failed to trigger sweep")
		}
		return
	}

	h.Accepted(c, gin.H{"triggered": true})
}

// RegisterRoutes implements the router registrar contract for rollup routes
func (h *RollupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rollups := rg.Group("/rollups")
	{
		rollups.GET("/range", h.GetRangeAggregate)
		rollups.GET("/missing", h.GetMissingDates)
		rollups.POST("/backfill", h.PostBackfill)
		rollups.POST("/rebuild", h.PostRebuild)
		rollups.POST("/sweep", h.PostSweep)
	}
}
