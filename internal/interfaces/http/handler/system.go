package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/salesboard/backend/internal/interfaces/http/dto"
)

// Pinger checks connectivity to a backing store
type Pinger interface {
	Ping() error
}

// StatusReporter exposes the scheduler's run state
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

// SystemHandler handles health and system-related API endpoints
type SystemHandler struct {
	BaseHandler
	db        Pinger
	scheduler StatusReporter
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. db and scheduler may be nil;
// their sections are omitted from responses.
func NewSystemHandler(db Pinger, scheduler StatusReporter) *SystemHandler {
	return &SystemHandler{
		db:        db,
		scheduler: scheduler,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database,omitempty" example:"ok"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Reports service liveness and database connectivity
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[HealthResponse]
// @Failure      503 {object} ErrorResponse
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			c.JSON(http.StatusServiceUnavailable, dto.NewSuccessResponse(resp))
			return
		}
		resp.Database = "ok"
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"Salesboard Backend API"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "Salesboard Backend API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// GetSchedulerStatus godoc
// @ID           getSchedulerStatus
// @Summary      Get scheduler status
// @Description  Returns the rollup scheduler's run state and next fire time
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[map[string]interface{}]
// @Router       /system/scheduler [get]
func (h *SystemHandler) GetSchedulerStatus(c *gin.Context) {
	if h.scheduler == nil {
		h.Success(c, gin.H{"enabled": false})
		return
	}
	h.Success(c, h.scheduler.GetStatus())
}

// RegisterRoutes implements the router registrar contract for system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	system := rg.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
		system.GET("/scheduler", h.GetSchedulerStatus)
	}
}
