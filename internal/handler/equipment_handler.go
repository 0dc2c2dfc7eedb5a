package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// EquipmentHandler wires equipment services to HTTP routes.
type EquipmentHandler struct {
	equipment *service.EquipmentService
}

// NewEquipmentHandler constructs an EquipmentHandler.
func NewEquipmentHandler(equipment *service.EquipmentService) *EquipmentHandler {
	return &EquipmentHandler{equipment: equipment}
}

func equipmentFilterFromQuery(c *gin.Context) models.EquipmentFilter {
	filter := models.EquipmentFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		SiteID:    queryString(c, "site_id"),
		Category:  queryString(c, "category"),
		Active:    queryBool(c, "active"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if state := c.Query("state"); state != "" {
		value := models.EquipmentState(state)
		filter.State = &value
	}
	if availability := c.Query("availability"); availability != "" {
		value := models.EquipmentAvailability(availability)
		filter.Availability = &value
	}
	if employee := queryString(c, "assigned_employee_id"); employee != nil {
		filter.AssignedEmployeeID = employee
	}
	if due := c.Query("maintenance_due_by"); due != "" {
		if parsed, err := time.Parse(models.DateLayout, due); err == nil {
			filter.MaintenanceDueBy = &parsed
		}
	}
	switch status := strings.ToLower(c.Query("maintenance_status")); status {
	case models.MaintenanceStatusOverdue, models.MaintenanceStatusUpcoming:
		filter.MaintenanceStatus = status
	}
	return filter
}

// List godoc
// @Summary List equipment
// @Tags Equipment
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by serial/name/brand"
// @Param site_id query string false "Filter by site"
// @Param state query string false "Filter by state"
// @Param availability query string false "Filter by availability"
// @Param maintenance_status query string false "Filter by maintenance status (overdue, upcoming)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /equipment [get]
func (h *EquipmentHandler) List(c *gin.Context) {
	items, pagination, err := h.equipment.List(c.Request.Context(), actorFromContext(c), equipmentFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get equipment detail
// @Tags Equipment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Equipment ID"
// @Success 200 {object} response.Envelope
// @Router /equipment/{id} [get]
func (h *EquipmentHandler) Get(c *gin.Context) {
	item, err := h.equipment.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Register equipment
// @Tags Equipment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateEquipmentRequest true "Equipment payload"
// @Success 201 {object} response.Envelope
// @Router /equipment [post]
func (h *EquipmentHandler) Create(c *gin.Context) {
	var req service.CreateEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid equipment payload"))
		return
	}
	item, err := h.equipment.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update equipment
// @Tags Equipment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Equipment ID"
// @Param payload body service.UpdateEquipmentRequest true "Equipment payload"
// @Success 200 {object} response.Envelope
// @Router /equipment/{id} [put]
func (h *EquipmentHandler) Update(c *gin.Context) {
	var req service.UpdateEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid equipment payload"))
		return
	}
	item, err := h.equipment.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Decommission godoc
// @Summary Decommission equipment
// @Tags Equipment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Equipment ID"
// @Success 204
// @Router /equipment/{id} [delete]
func (h *EquipmentHandler) Decommission(c *gin.Context) {
	if err := h.equipment.Decommission(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export the equipment inventory
// @Tags Equipment
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {file} file
// @Router /equipment/export [get]
func (h *EquipmentHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.equipment.Export(c.Request.Context(), actorFromContext(c), equipmentFilterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	extension := "csv"
	if format == "pdf" {
		extension = "pdf"
	}
	filename := fmt.Sprintf("inventario-equipos-%s.%s", time.Now().UTC().Format("20060102"), extension)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
