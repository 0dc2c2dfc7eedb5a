package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/middleware"
	"github.com/gestionequipos/activos-api/internal/service"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// DashboardHandler exposes aggregated inventory indicators.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary godoc
// @Summary Get the dashboard summary for the caller's scope
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, cacheHit, err := h.dashboard.Summary(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// UpcomingMaintenance godoc
// @Summary List maintenance due soon for the caller's scope
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Param limit query int false "Maximum records"
// @Success 200 {object} response.Envelope
// @Router /dashboard/upcoming-maintenance [get]
func (h *DashboardHandler) UpcomingMaintenance(c *gin.Context) {
	records, err := h.dashboard.UpcomingMaintenance(c.Request.Context(), actorFromContext(c), queryInt(c, "days", 30), queryInt(c, "limit", 10))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
