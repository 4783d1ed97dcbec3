package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/service"
)

// StatsHandler reports per-status totals and lead data quality.
type StatsHandler struct {
	leads   *service.LeadService
	imports *service.ImportService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(leads *service.LeadService, imports *service.ImportService) *StatsHandler {
	return &StatsHandler{leads: leads, imports: imports}
}

// Get handles GET /api/v1/stats.
func (h *StatsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.leads.StatusCounts(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	jobs, err := h.imports.JobStatusCounts(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	quality, err := h.leads.QualityMetrics(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leads":   counts.Leads,
		"batches": counts.Batches,
		"jobs":    jobs,
		"quality": quality,
		"summary": gin.H{
			"total_leads":        quality.TotalLeads,
			"total_batches":      sum(counts.Batches),
			"total_imports":      sum(jobs),
			"recently_converted": counts.Leads[domain.LeadStatusConverted],
		},
	})
}

func sum[K comparable](m map[K]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}
