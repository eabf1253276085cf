package capitalstack

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

// Renderer turns a summary into a downloadable document
type Renderer interface {
	Render(summary *Summary, w io.Writer) error
}

type Handler struct {
	service *Service
	excel   Renderer
	pdf     Renderer
}

func NewHandler(service *Service, excel, pdf Renderer) *Handler {
	return &Handler{service: service, excel: excel, pdf: pdf}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:dealId/capital-stack", h.Get)
	r.GET("/:dealId/capital-stack/export.xlsx", h.ExportExcel)
	r.GET("/:dealId/capital-stack/export.pdf", h.ExportPDF)
}

func (h *Handler) Get(c *gin.Context) {
	summary, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ExportExcel(c *gin.Context) {
	summary, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=capital-stack-%s.xlsx", summary.DealID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.excel.Render(summary, c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) ExportPDF(c *gin.Context) {
	summary, ok := h.loadSummary(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=capital-stack-%s.pdf", summary.DealID))
	c.Header("Content-Type", "application/pdf")
	if err := h.pdf.Render(summary, c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) loadSummary(c *gin.Context) (*Summary, bool) {
	dealID, err := uuid.Parse(c.Param("dealId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return nil, false
	}

	summary, err := h.service.GetCapitalStack(c.Request.Context(), dealID)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return summary, true
}
