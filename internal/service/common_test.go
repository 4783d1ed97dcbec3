package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagingNormalize(t *testing.T) {
	paging := Paging{DefaultPageSize: 20, MaxPageSize: 100}

	tests := []struct {
		name                  string
		page, pageSize        int
		wantPage, wantSize    int
		wantLimit, wantOffset int
	}{
		{"defaults", 0, 0, 1, 20, 20, 0},
		{"negative page", -5, 10, 1, 10, 10, 0},
		{"second page", 2, 10, 2, 10, 10, 10},
		{"size capped", 3, 500, 3, 100, 100, 200},
		{"huge page", math.MaxInt, 100, math.MaxInt32/100 + 1, 100, 100, math.MaxInt32 / 100 * 100},
		{"huge page default size", math.MaxInt - 1, 0, math.MaxInt32/20 + 1, 20, 20, math.MaxInt32 / 20 * 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size, limit, offset := paging.normalize(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
			assert.GreaterOrEqual(t, offset, 0)
		})
	}
}

func TestPagingNormalizeFallsBackToDefaults(t *testing.T) {
	page, size, _, offset := Paging{}.normalize(3, 0)
	assert.Equal(t, 3, page)
	assert.Equal(t, DefaultPaging.DefaultPageSize, size)
	assert.Equal(t, 2*DefaultPaging.DefaultPageSize, offset)
}
