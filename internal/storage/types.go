package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSuperseded indicates that a conditional pipeline write lost to a newer
	// status or generation.
	ErrSuperseded = errors.New("superseded")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// SortBy specifies the field to sort by (e.g., "created_at", "updated_at").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Status filters by processing status. Empty means no filter.
	Status types.ProcessingStatus

	// MemoryType filters by memory type. Empty means no filter.
	MemoryType types.MemoryType

	// Flagged filters by flag state when non-nil.
	Flagged *bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":       true,
		"updated_at":       true,
		"confidence_score": true,
		"id":               true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 20
	}

	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Candidate is a similarity hit from a candidate source.
type Candidate struct {
	Memory     types.Memory
	Similarity float64
}

// MemoryDigest is the projection used by insights.
type MemoryDigest struct {
	ID        string
	CreatedAt time.Time
	Content   string
	Summary   string
	WordCount int
}
