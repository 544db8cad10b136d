package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/salesboard/backend/internal/application/dashboard"
)

// DashboardHandler serves the role-projected sales dashboard
type DashboardHandler struct {
	BaseHandler
	assembler *dashboard.Assembler
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(assembler *dashboard.Assembler) *DashboardHandler {
	return &DashboardHandler{assembler: assembler}
}

// GetDashboard godoc
// @ID           getDashboard
// @Summary      Get the sales dashboard
// @Description  Returns range totals, per-agent and per-brand breakdowns, and
// @Description  the daily series, projected for the caller's role
// @Tags         dashboard
// @Produce      json
// @Param        preset query string false "Range preset" Enums(today, yesterday, last7, last30, month_to_date, custom)
// @Param        start  query string false "Inclusive start date (YYYY-MM-DD), preset=custom only"
// @Param        end    query string false "Inclusive end date (YYYY-MM-DD), preset=custom only"
// @Success      200 {object} APIResponse[dashboard.DashboardView]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /dashboard [get]
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	var sel dashboard.RangeSelector
	if err := c.ShouldBindQuery(&sel); err != nil {
		h.BadRequest(c, "Invalid range query: "+err.Error())
		return
	}

	viewer, err := getViewer(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	view, err := h.assembler.Dashboard(c.Request.Context(), viewer, sel)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, view)
}

// RegisterRoutes implements the router registrar contract for dashboard routes
func (h *DashboardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.GetDashboard)
}
