package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/internal/service"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// AuditHandler exposes the change history for browsing.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List change records
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param entity_type query string false "Filter by entity type"
// @Param entity_id query string false "Filter by entity"
// @Param action query string false "Filter by action"
// @Param actor_id query string false "Filter by the user who made the change"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.ChangeRecordFilter{
		EntityType: queryString(c, "entity_type"),
		EntityID:   queryString(c, "entity_id"),
		ActorID:    queryString(c, "actor_id"),
		SiteID:     queryString(c, "site_id"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "limit", 20),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	if action := c.Query("action"); action != "" {
		value := models.ChangeAction(action)
		filter.Action = &value
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
	records, pagination, err := h.audit.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// EntityHistory godoc
// @Summary Get the change history of a single entity
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param entityType path string true "Entity type"
// @Param entityId path string true "Entity ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/{entityType}/{entityId} [get]
func (h *AuditHandler) EntityHistory(c *gin.Context) {
	records, pagination, err := h.audit.EntityHistory(
		c.Request.Context(),
		actorFromContext(c),
		c.Param("entityType"),
		c.Param("entityId"),
		queryInt(c, "page", 1),
		queryInt(c, "limit", 20),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// RecentActivity godoc
// @Summary List the most recent changes
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 7)"
// @Param limit query int false "Maximum records"
// @Success 200 {object} response.Envelope
// @Router /audit/recent [get]
func (h *AuditHandler) RecentActivity(c *gin.Context) {
	records, err := h.audit.RecentActivity(c.Request.Context(), actorFromContext(c), queryInt(c, "days", 7), queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
