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

// LicenseHandler wires software license management to HTTP routes.
type LicenseHandler struct {
	licenses *service.LicenseService
}

// NewLicenseHandler constructs a LicenseHandler.
func NewLicenseHandler(licenses *service.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// List godoc
// @Summary List software licenses
// @Tags Licenses
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by software name"
// @Param equipment_id query string false "Filter by linked equipment"
// @Param site_id query string false "Filter by site"
// @Param expired_only query bool false "Only expired licenses"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /licenses [get]
func (h *LicenseHandler) List(c *gin.Context) {
	filter := models.LicenseFilter{
		Search:      strings.TrimSpace(c.Query("search")),
		EquipmentID: queryString(c, "equipment_id"),
		SiteID:      queryString(c, "site_id"),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "limit", 20),
		SortBy:      c.Query("sort"),
		SortOrder:   c.Query("order"),
	}
	if expired := queryBool(c, "expired_only"); expired != nil {
		filter.ExpiredOnly = *expired
	}
	items, pagination, err := h.licenses.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get license detail
// @Tags Licenses
// @Produce json
// @Security BearerAuth
// @Param id path string true "License ID"
// @Success 200 {object} response.Envelope
// @Router /licenses/{id} [get]
func (h *LicenseHandler) Get(c *gin.Context) {
	item, err := h.licenses.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Register a software license
// @Tags Licenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateLicenseRequest true "License payload"
// @Success 201 {object} response.Envelope
// @Router /licenses [post]
func (h *LicenseHandler) Create(c *gin.Context) {
	var req service.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid license payload"))
		return
	}
	item, err := h.licenses.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a software license
// @Tags Licenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "License ID"
// @Param payload body service.UpdateLicenseRequest true "License payload"
// @Success 200 {object} response.Envelope
// @Router /licenses/{id} [put]
func (h *LicenseHandler) Update(c *gin.Context) {
	var req service.UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid license payload"))
		return
	}
	item, err := h.licenses.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Remove a software license
// @Tags Licenses
// @Produce json
// @Security BearerAuth
// @Param id path string true "License ID"
// @Success 204
// @Router /licenses/{id} [delete]
func (h *LicenseHandler) Delete(c *gin.Context) {
	if err := h.licenses.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
