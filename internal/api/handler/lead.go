package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/service"
)

// LeadHandler handles lead endpoints.
type LeadHandler struct {
	leads *service.LeadService
}

// NewLeadHandler creates a new lead handler.
func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

// Search handles GET /api/v1/leads.
// Query parameters: q, status, min_followers, batch_id, is_business_account,
// page, page_size.
func (h *LeadHandler) Search(c *gin.Context) {
	page, pageSize := pageParams(c)
	q := service.LeadQuery{
		Query:    c.Query("q"),
		Status:   domain.LeadStatus(c.Query("status")),
		BatchID:  c.Query("batch_id"),
		Page:     page,
		PageSize: pageSize,
	}

	if raw := c.Query("min_followers"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "min_followers must be a number")
			return
		}
		q.MinFollowers = &v
	}
	if raw := c.Query("is_business_account"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "is_business_account must be true or false")
			return
		}
		q.IsBusinessAccount = &v
	}

	list, err := h.leads.SearchLeads(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /api/v1/leads/:id.
func (h *LeadHandler) Get(c *gin.Context) {
	lead, err := h.leads.GetLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// UpdateStatusRequest is the body of PATCH /api/v1/leads/:id/status.
type UpdateStatusRequest struct {
	Status domain.LeadStatus `json:"status" binding:"required"`
	Notes  string            `json:"notes"`
}

// UpdateStatus handles PATCH /api/v1/leads/:id/status.
func (h *LeadHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	lead, err := h.leads.UpdateLeadStatus(c.Request.Context(), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}
