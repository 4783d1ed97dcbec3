package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/service"
)

// multipartOverhead is the room left for multipart headers and boundaries
// on top of the file size cap.
const multipartOverhead = 64 << 10

// FileHandler handles file upload endpoints.
type FileHandler struct {
	files    *service.FileService
	maxBytes int64
}

// NewFileHandler creates a new file handler.
// Parameters:
//   - files: file service instance.
//   - maxBytes: upload size cap, zero for none.
// Returns:
//   - *FileHandler: initialized handler.
func NewFileHandler(files *service.FileService, maxBytes int64) *FileHandler {
	return &FileHandler{files: files, maxBytes: maxBytes}
}

// Upload handles POST /api/v1/files (multipart field "file").
func (h *FileHandler) Upload(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		badRequest(c, UserIDHeader+" header is required")
		return
	}

	if h.maxBytes > 0 {
		limit := h.maxBytes + multipartOverhead
		if c.Request.ContentLength > limit {
			h.tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		badRequest(c, "file is required")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		badRequest(c, "only .csv files are accepted")
		return
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		h.tooLarge(c)
		return
	}

	f, err := header.Open()
	if err != nil {
		badRequest(c, "cannot read upload: "+err.Error())
		return
	}
	defer f.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "text/csv"
	}

	file, err := h.files.Store(c.Request.Context(), f, header.Filename, mimeType, header.Size, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func (h *FileHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("file exceeds %d bytes", h.maxBytes),
	})
}

// List handles GET /api/v1/files.
func (h *FileHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	userID := c.DefaultQuery("user_id", callerID(c))

	list, err := h.files.List(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get handles GET /api/v1/files/:id.
func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.files.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Delete handles DELETE /api/v1/files/:id.
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
