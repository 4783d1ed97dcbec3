package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/timmy/leadimport/internal/domain"
	"gorm.io/gorm"
)

// Paging holds the page size rules shared by list operations.
type Paging struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultPaging is used when a service is built without explicit paging.
var DefaultPaging = Paging{DefaultPageSize: 20, MaxPageSize: 100}

// normalize clamps page and pageSize and returns them with limit and offset.
func (p Paging) normalize(page, pageSize int) (int, int, int, int) {
	if p.DefaultPageSize <= 0 {
		p = DefaultPaging
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = p.DefaultPageSize
	}
	if p.MaxPageSize > 0 && pageSize > p.MaxPageSize {
		pageSize = p.MaxPageSize
	}
	// keep the offset inside a 32-bit SQL integer
	if maxPage := math.MaxInt32/pageSize + 1; page > maxPage {
		page = maxPage
	}
	return page, pageSize, pageSize, (page - 1) * pageSize
}

// notFound maps gorm.ErrRecordNotFound to domain.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func strPtr(s string) *string {
	return &s
}
