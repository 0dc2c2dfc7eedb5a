package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// MaintenanceHandler wires the maintenance lifecycle to HTTP routes.
type MaintenanceHandler struct {
	maintenance *service.MaintenanceService
}

// NewMaintenanceHandler constructs a MaintenanceHandler.
func NewMaintenanceHandler(maintenance *service.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance}
}

// List godoc
// @Summary List maintenance records
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param equipment_id query string false "Filter by equipment"
// @Param state query string false "Filter by lifecycle state"
// @Param kind query string false "Filter by kind"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /maintenance [get]
func (h *MaintenanceHandler) List(c *gin.Context) {
	filter := models.MaintenanceFilter{
		EquipmentID: queryString(c, "equipment_id"),
		Search:      strings.TrimSpace(c.Query("search")),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "limit", 20),
		SortBy:      c.Query("sort"),
		SortOrder:   c.Query("order"),
	}
	if state := c.Query("state"); state != "" {
		value := models.MaintenanceState(state)
		filter.State = &value
	}
	if kind := c.Query("kind"); kind != "" {
		value := models.MaintenanceKind(kind)
		filter.Kind = &value
	}
	if from := c.Query("from"); from != "" {
		if parsed, err := time.Parse(models.DateLayout, from); err == nil {
			filter.FromDate = &parsed
		}
	}
	if to := c.Query("to"); to != "" {
		if parsed, err := time.Parse(models.DateLayout, to); err == nil {
			filter.ToDate = &parsed
		}
	}

	records, pagination, err := h.maintenance.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get maintenance detail
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id} [get]
func (h *MaintenanceHandler) Get(c *gin.Context) {
	record, err := h.maintenance.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Upcoming godoc
// @Summary List upcoming maintenance
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30)"
// @Param limit query int false "Maximum records"
// @Success 200 {object} response.Envelope
// @Router /maintenance/upcoming [get]
func (h *MaintenanceHandler) Upcoming(c *gin.Context) {
	records, err := h.maintenance.Upcoming(c.Request.Context(), actorFromContext(c), queryInt(c, "days", 30), queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// History godoc
// @Summary Get the action log of a maintenance
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/history [get]
func (h *MaintenanceHandler) History(c *gin.Context) {
	actions, err := h.maintenance.History(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// Create godoc
// @Summary Open a maintenance on a device
// @Tags Maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateMaintenanceRequest true "Maintenance payload"
// @Success 201 {object} response.Envelope
// @Router /maintenance [post]
func (h *MaintenanceHandler) Create(c *gin.Context) {
	var req service.CreateMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid maintenance payload"))
		return
	}
	record, err := h.maintenance.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Edit an open maintenance
// @Tags Maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Param payload body service.UpdateMaintenanceRequest true "Maintenance payload"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id} [put]
func (h *MaintenanceHandler) Update(c *gin.Context) {
	var req service.UpdateMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid maintenance payload"))
		return
	}
	record, err := h.maintenance.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Start godoc
// @Summary Start a pending maintenance
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/start [post]
func (h *MaintenanceHandler) Start(c *gin.Context) {
	record, err := h.maintenance.Start(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Finish godoc
// @Summary Finish an in-progress maintenance
// @Tags Maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Param payload body service.FinishMaintenanceRequest false "Finish payload"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/finish [post]
func (h *MaintenanceHandler) Finish(c *gin.Context) {
	var req service.FinishMaintenanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid finish payload"))
			return
		}
	}
	record, err := h.maintenance.Finish(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Cancel godoc
// @Summary Cancel a maintenance
// @Tags Maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Param payload body service.CancelMaintenanceRequest false "Cancel payload"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/cancel [post]
func (h *MaintenanceHandler) Cancel(c *gin.Context) {
	var req service.CancelMaintenanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
			return
		}
	}
	record, err := h.maintenance.Cancel(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AddEvidence godoc
// @Summary Attach an evidence file
// @Tags Maintenance
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Router /maintenance/{id}/evidence [post]
func (h *MaintenanceHandler) AddEvidence(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read evidence file"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read evidence file"))
		return
	}

	evidence, err := h.maintenance.AddEvidence(c.Request.Context(), actorFromContext(c), c.Param("id"), service.EvidenceUpload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evidence)
}

// ListEvidence godoc
// @Summary List evidence of a maintenance
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Maintenance ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/{id}/evidence [get]
func (h *MaintenanceHandler) ListEvidence(c *gin.Context) {
	evidence, err := h.maintenance.ListEvidence(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evidence, nil)
}

// EvidenceURL godoc
// @Summary Issue a signed download link for an evidence file
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param evidenceId path string true "Evidence ID"
// @Success 200 {object} response.Envelope
// @Router /maintenance/evidence/{evidenceId}/url [get]
func (h *MaintenanceHandler) EvidenceURL(c *gin.Context) {
	token, expiresAt, err := h.maintenance.EvidenceDownloadURL(c.Request.Context(), actorFromContext(c), c.Param("evidenceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt}, nil)
}

// DeleteEvidence godoc
// @Summary Remove an evidence file
// @Tags Maintenance
// @Produce json
// @Security BearerAuth
// @Param evidenceId path string true "Evidence ID"
// @Success 204
// @Router /maintenance/evidence/{evidenceId} [delete]
func (h *MaintenanceHandler) DeleteEvidence(c *gin.Context) {
	if err := h.maintenance.DeleteEvidence(c.Request.Context(), actorFromContext(c), c.Param("evidenceId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DownloadEvidence godoc
// @Summary Download an evidence file with a signed token
// @Tags Files
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /files/evidence [get]
func (h *MaintenanceHandler) DownloadEvidence(c *gin.Context) {
	evidence, file, err := h.maintenance.OpenEvidenceByToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", evidence.FileName))
	c.Header("Content-Type", evidence.ContentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
