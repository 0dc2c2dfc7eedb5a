package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// PeripheralHandler wires peripheral management to HTTP routes.
type PeripheralHandler struct {
	peripherals *service.PeripheralService
}

// NewPeripheralHandler constructs a PeripheralHandler.
func NewPeripheralHandler(peripherals *service.PeripheralService) *PeripheralHandler {
	return &PeripheralHandler{peripherals: peripherals}
}

// List godoc
// @Summary List peripherals
// @Tags Peripherals
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by serial or brand"
// @Param type query string false "Filter by peripheral type"
// @Param equipment_id query string false "Filter by linked equipment"
// @Param assigned_employee_id query string false "Filter by holder"
// @Param site_id query string false "Filter by site"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /peripherals [get]
func (h *PeripheralHandler) List(c *gin.Context) {
	filter := models.PeripheralFilter{
		Search:             strings.TrimSpace(c.Query("search")),
		EquipmentID:        queryString(c, "equipment_id"),
		AssignedEmployeeID: queryString(c, "assigned_employee_id"),
		SiteID:             queryString(c, "site_id"),
		Page:               queryInt(c, "page", 1),
		PageSize:           queryInt(c, "limit", 20),
		SortBy:             c.Query("sort"),
		SortOrder:          c.Query("order"),
	}
	if kind := c.Query("type"); kind != "" {
		value := models.PeripheralType(kind)
		filter.Type = &value
	}
	items, pagination, err := h.peripherals.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get peripheral detail
// @Tags Peripherals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Peripheral ID"
// @Success 200 {object} response.Envelope
// @Router /peripherals/{id} [get]
func (h *PeripheralHandler) Get(c *gin.Context) {
	item, err := h.peripherals.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Register a peripheral
// @Tags Peripherals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePeripheralRequest true "Peripheral payload"
// @Success 201 {object} response.Envelope
// @Router /peripherals [post]
func (h *PeripheralHandler) Create(c *gin.Context) {
	var req service.CreatePeripheralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid peripheral payload"))
		return
	}
	item, err := h.peripherals.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a peripheral
// @Tags Peripherals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Peripheral ID"
// @Param payload body service.UpdatePeripheralRequest true "Peripheral payload"
// @Success 200 {object} response.Envelope
// @Router /peripherals/{id} [put]
func (h *PeripheralHandler) Update(c *gin.Context) {
	var req service.UpdatePeripheralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid peripheral payload"))
		return
	}
	item, err := h.peripherals.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Remove a peripheral
// @Tags Peripherals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Peripheral ID"
// @Success 204
// @Router /peripherals/{id} [delete]
func (h *PeripheralHandler) Delete(c *gin.Context) {
	if err := h.peripherals.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
