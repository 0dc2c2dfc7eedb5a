package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// ClearanceHandler wires employee clearance certificates to HTTP routes.
type ClearanceHandler struct {
	clearances *service.ClearanceService
}

// NewClearanceHandler constructs a ClearanceHandler.
func NewClearanceHandler(clearances *service.ClearanceService) *ClearanceHandler {
	return &ClearanceHandler{clearances: clearances}
}

type requestClearancePayload struct {
	EmployeeID string `json:"employee_id" binding:"required"`
}

// List godoc
// @Summary List clearance requests
// @Tags Clearances
// @Produce json
// @Security BearerAuth
// @Param employee_id query string false "Filter by employee"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearances [get]
func (h *ClearanceHandler) List(c *gin.Context) {
	filter := models.ClearanceFilter{
		EmployeeID: queryString(c, "employee_id"),
		SiteID:     queryString(c, "site_id"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "limit", 20),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	if status := c.Query("status"); status != "" {
		value := models.ClearanceStatus(status)
		filter.Status = &value
	}
	items, pagination, err := h.clearances.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get clearance detail
// @Tags Clearances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clearance ID"
// @Success 200 {object} response.Envelope
// @Router /clearances/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	item, err := h.clearances.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Request godoc
// @Summary Request a clearance certificate for an employee
// @Tags Clearances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body requestClearancePayload true "Clearance request"
// @Success 201 {object} response.Envelope
// @Router /clearances [post]
func (h *ClearanceHandler) Request(c *gin.Context) {
	var req requestClearancePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clearance payload"))
		return
	}
	clearance, err := h.clearances.Request(c.Request.Context(), actorFromContext(c), req.EmployeeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, clearance)
}

// DocumentURL godoc
// @Summary Issue a signed download link for the certificate
// @Tags Clearances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clearance ID"
// @Success 200 {object} response.Envelope
// @Router /clearances/{id}/document-url [get]
func (h *ClearanceHandler) DocumentURL(c *gin.Context) {
	token, expiresAt, err := h.clearances.DocumentURL(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt}, nil)
}

// DownloadDocument godoc
// @Summary Download a certificate with a signed token
// @Tags Files
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /files/clearances [get]
func (h *ClearanceHandler) DownloadDocument(c *gin.Context) {
	clearance, file, err := h.clearances.OpenDocumentByToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	filename := fmt.Sprintf("paz-y-salvo-%s.pdf", clearance.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
