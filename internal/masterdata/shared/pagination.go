package shared

import (
	"net/http"
	"strconv"
)

// List paging defaults and sort directions for catalogue listings.
const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 200

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list filters
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	Category string
	Supplier string
	LowStock bool
}

// FiltersFromRequest reads list filters from query parameters.
func FiltersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return ListFilters{
		Page:     page,
		Limit:    limit,
		Search:   q.Get("search"),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
		Category: q.Get("category"),
		Supplier: q.Get("supplier"),
		LowStock: q.Get("low_stock") == "true",
	}
}

// Offset returns the row offset for the current page.
func (f ListFilters) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
