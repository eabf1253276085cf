package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

// allowed entity types for the trail listing
var listableEntities = map[string]bool{
	"match_request":    true,
	"letter_of_intent": true,
	"commitment":       true,
}

type Handler struct {
	reader Reader
}

func NewHandler(reader Reader) *Handler {
	return &Handler{reader: reader}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:entityType/:entityId", h.ListForEntity)
}

func (h *Handler) ListForEntity(c *gin.Context) {
	entityType := c.Param("entityType")
	if !listableEntities[entityType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return
	}
	entityID, err := uuid.Parse(c.Param("entityId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	events, err := h.reader.ListForEntity(c.Request.Context(), entityType, entityID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
