package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/leadimport/internal/api/middleware"
	"github.com/timmy/leadimport/internal/domain"
)

// UserIDHeader carries the caller's identity.
const UserIDHeader = "X-User-ID"

// respondError maps service errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	var (
		verr *domain.ValidationError
		perr *domain.ParseError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.As(err, &verr), errors.As(err, &perr):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func callerID(c *gin.Context) string {
	return c.GetHeader(UserIDHeader)
}

// pageParams reads page and page_size; invalid values fall back to zero so
// the service applies its defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	return page, pageSize
}
