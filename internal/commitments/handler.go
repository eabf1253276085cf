package commitments

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
	r.GET("", h.List)
	r.GET("/:id", h.Get)
	r.POST("/:id/actions", h.PerformAction)
}

type createRequest struct {
	DealID                uuid.UUID      `json:"deal_id" binding:"required"`
	InvestorID            uuid.UUID      `json:"investor_id" binding:"required"`
	SponsorID             uuid.UUID      `json:"sponsor_id" binding:"required"`
	CDEID                 *uuid.UUID     `json:"cde_id"`
	LOIID                 *uuid.UUID     `json:"loi_id"`
	InvestmentAmount      float64        `json:"investment_amount" binding:"required"`
	CreditType            string         `json:"credit_type" binding:"required"`
	PricingCentsPerCredit *int           `json:"pricing_cents_per_credit"`
	Terms                 map[string]any `json:"terms"`
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

	commitment, err := h.service.Create(c.Request.Context(), actor, CreateInput{
		DealID:                body.DealID,
		InvestorID:            body.InvestorID,
		SponsorID:             body.SponsorID,
		CDEID:                 body.CDEID,
		LOIID:                 body.LOIID,
		InvestmentAmount:      body.InvestmentAmount,
		CreditType:            body.CreditType,
		PricingCentsPerCredit: body.PricingCentsPerCredit,
		Terms:                 body.Terms,
	})
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, commitment)
}

// List filters by exactly one of deal_id, investor_id, sponsor_id
func (h *Handler) List(c *gin.Context) {
	type lister func(ctx *gin.Context, id uuid.UUID) ([]Commitment, error)
	filters := map[string]lister{
		"deal_id": func(ctx *gin.Context, id uuid.UUID) ([]Commitment, error) {
			return h.service.ListForDeal(ctx.Request.Context(), id)
		},
		"investor_id": func(ctx *gin.Context, id uuid.UUID) ([]Commitment, error) {
			return h.service.ListForInvestor(ctx.Request.Context(), id)
		},
		"sponsor_id": func(ctx *gin.Context, id uuid.UUID) ([]Commitment, error) {
			return h.service.ListForSponsor(ctx.Request.Context(), id)
		},
	}

	for param, list := range filters {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
			return
		}
		results, err := list(c, id)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"commitments": results})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "one of deal_id, investor_id, sponsor_id is required"})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commitment id"})
		return
	}

	commitment, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, commitment)
}

type actionRequest struct {
	Action  string        `json:"action" binding:"required"`
	Payload ActionPayload `json:"payload"`
}

func (h *Handler) PerformAction(c *gin.Context) {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commitment id"})
		return
	}

	var body actionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.PerformAction(c.Request.Context(), actor, id, body.Action, body.Payload)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
