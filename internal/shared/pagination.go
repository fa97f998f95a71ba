package shared

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// PageRequest is the page a list endpoint was asked for.
type PageRequest struct {
	Page    int
	PerPage int
}

// ParsePage reads page and per_page. Missing or bad values fall back to page 1 of 20;
// per_page is capped at 100.
func ParsePage(r *http.Request) PageRequest {
	q := r.URL.Query()
	p := PageRequest{Page: atoiOr(q.Get("page"), 1), PerPage: atoiOr(q.Get("per_page"), defaultPerPage)}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Limit is the SQL LIMIT for the page.
func (p PageRequest) Limit() int { return p.PerPage }

// Offset is the SQL OFFSET for the page.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.PerPage }

// Pagination is the listing metadata returned next to the rows.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Meta describes the page given the total row count.
func (p PageRequest) Meta(total int) Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Pagination{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: pages}
}

func atoiOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
