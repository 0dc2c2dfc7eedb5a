package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/service"
	"github.com/gestionequipos/activos-api/pkg/response"
)

// ConsistencyHandler exposes the on-demand data consistency check.
type ConsistencyHandler struct {
	consistency *service.ConsistencyService
}

// NewConsistencyHandler constructs a ConsistencyHandler.
func NewConsistencyHandler(consistency *service.ConsistencyService) *ConsistencyHandler {
	return &ConsistencyHandler{consistency: consistency}
}

// Run godoc
// @Summary Run the data consistency check
// @Tags Consistency
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /consistency/run [post]
func (h *ConsistencyHandler) Run(c *gin.Context) {
	report, err := h.consistency.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
