package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// AssignmentHandler exposes the custody ledger for browsing.
type AssignmentHandler struct {
	assignments *service.AssignmentQueryService
}

// NewAssignmentHandler constructs an AssignmentHandler.
func NewAssignmentHandler(assignments *service.AssignmentQueryService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// List godoc
// @Summary List assignment custody periods
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param asset_type query string false "Filter by asset type"
// @Param asset_id query string false "Filter by asset"
// @Param employee_id query string false "Filter by employee"
// @Param open_only query bool false "Only periods without an end date"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	filter := models.AssignmentFilter{
		AssetID:    queryString(c, "asset_id"),
		EmployeeID: queryString(c, "employee_id"),
		SiteID:     queryString(c, "site_id"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "limit", 20),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	if assetType := c.Query("asset_type"); assetType != "" {
		value := models.AssetType(assetType)
		filter.AssetType = &value
	}
	if open := queryBool(c, "open_only"); open != nil {
		filter.OpenOnly = *open
	}
	records, pagination, err := h.assignments.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}
