package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/service"
)

// ImportHandler handles import job endpoints.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler creates a new import handler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// StartImportRequest is the body of POST /api/v1/imports.
type StartImportRequest struct {
	FileID string `json:"file_id" binding:"required"`
}

// Start handles POST /api/v1/imports. The job runs in the background; the
// response carries the queued job.
func (h *ImportHandler) Start(c *gin.Context) {
	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "file_id is required")
		return
	}

	job, err := h.imports.StartImport(c.Request.Context(), req.FileID, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// List handles GET /api/v1/imports.
func (h *ImportHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.imports.GetJobs(c.Request.Context(), page, pageSize, c.Query("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /api/v1/imports/:id.
func (h *ImportHandler) Get(c *gin.Context) {
	detail, err := h.imports.GetImportJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
