package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/service"
)

// BatchHandler handles lead batch endpoints.
type BatchHandler struct {
	leads *service.LeadService
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(leads *service.LeadService) *BatchHandler {
	return &BatchHandler{leads: leads}
}

// List handles GET /api/v1/batches.
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.leads.ListBatches(c.Request.Context(), page, pageSize, c.Query("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /api/v1/batches/:id.
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.leads.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Leads handles GET /api/v1/batches/:id/leads.
func (h *BatchHandler) Leads(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.leads.ListLeadsByBatch(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Delete handles DELETE /api/v1/batches/:id.
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.leads.DeleteBatch(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
