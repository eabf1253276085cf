package matchrequests

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/auth"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Create)
	r.GET("/:id", h.Get)
	r.POST("/:id/respond", h.Respond)
	r.POST("/:id/withdraw", h.Withdraw)
	r.GET("/sent", h.ListSent)
	r.GET("/received", h.ListReceived)
}

type createRequest struct {
	DealID      uuid.UUID  `json:"deal_id" binding:"required"`
	TargetType  TargetType `json:"target_type" binding:"required"`
	TargetOrgID uuid.UUID  `json:"target_org_id" binding:"required"`
	Message     string     `json:"message"`
}

func (h *Handler) Create(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.Create(c.Request.Context(), actor, CreateInput{
		DealID:      body.DealID,
		TargetType:  body.TargetType,
		TargetOrgID: body.TargetOrgID,
		Message:     body.Message,
	})
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	req, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

type respondRequest struct {
	Action  ResponseAction `json:"action" binding:"required"`
	Message string         `json:"message"`
}

func (h *Handler) Respond(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	var body respondRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.service.Respond(c.Request.Context(), actor, id, body.Action, body.Message)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_request": req, "action_performed": body.Action})
}

func (h *Handler) Withdraw(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	req, err := h.service.Withdraw(c.Request.Context(), actor, id)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_request": req, "action_performed": "withdraw"})
}

func (h *Handler) ListSent(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	reqs, err := h.service.ListForSponsor(c.Request.Context(), actor.OrgID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *Handler) ListReceived(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	reqs, err := h.service.ListForTarget(c.Request.Context(), actor.OrgID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reqs)
}
