// Package store persists synced color data and serves the read queries
// behind the HTTP API.
package store

import (
	"context"

	"github.com/sanzolab/colorsync/internal/palette"
)

// Default and maximum page sizes applied when a query leaves Limit unset.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// ColorQuery selects a page of canonical colors, optionally filtered by a
// case-insensitive substring of the name or hex value.
type ColorQuery struct {
	Page   int
	Limit  int
	Search string
}

// CombinationQuery selects a page of combinations, optionally filtered by
// dataset tags.
type CombinationQuery struct {
	RoomType string
	AgeGroup string
	Page     int
	Limit    int
}

// Provider is the persistence surface shared by the memory and Postgres
// backends. List operations return the page plus the total matching count.
type Provider interface {
	UpsertCombinations(ctx context.Context, combos []palette.Combination) error
	ListColors(ctx context.Context, q ColorQuery) ([]palette.CanonicalColor, int, error)
	ListCombinations(ctx context.Context, q CombinationQuery) ([]palette.Combination, int, error)
	GetColorByHex(ctx context.Context, hex string) (palette.CanonicalColor, bool, error)
	AllColors(ctx context.Context) ([]palette.CanonicalColor, error)
	CombinationCount(ctx context.Context) (int, error)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
