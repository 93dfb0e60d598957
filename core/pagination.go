package core

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// PageParams are the list parameters shared by every paginated endpoint.
type PageParams struct {
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string // asc | desc
}

func (p PageParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

func (p PageParams) Ordering() DBOrdering {
	return DBOrdering{Field: p.SortBy, Ascending: p.SortOrder == "asc"}
}

// ParsePageParams reads page, per_page, sort_by and sort_order. per_page is clamped to
// [1, MaxPerPage]; other missing or malformed values fall back to the defaults. sort_by must
// be in `allowed`.
func ParsePageParams(page, perPage, sortBy, order string, allowed []string, defaultSort string) PageParams {
	p := PageParams{Page: 1, PerPage: DefaultPerPage, SortBy: defaultSort, SortOrder: "desc"}

	if n, err := strconv.Atoi(page); err == nil && n >= 1 {
		p.Page = n
	}
	if n, err := strconv.Atoi(perPage); err == nil {
		p.PerPage = min(MaxPerPage, max(1, n))
	}
	if sortBy != "" && StringIn(sortBy, allowed) {
		p.SortBy = sortBy
	}
	if o := strings.ToLower(order); o == "asc" || o == "desc" {
		p.SortOrder = o
	}
	return p
}

type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

func NewPageMeta(total int, p PageParams) PageMeta {
	pages := 0
	if p.PerPage > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.PerPage)))
	}
	return PageMeta{Total: total, Page: p.Page, PerPage: p.PerPage, TotalPages: pages}
}
