package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePageParams(t *testing.T) {
	allowed := []string{"name", "created_at"}
	tests := []struct {
		name                     string
		page, perPage, sort, ord string
		want                     PageParams
	}{
		{name: "defaults", want: PageParams{Page: 1, PerPage: DefaultPerPage, SortBy: "name", SortOrder: "desc"}},
		{
			name: "explicit", page: "3", perPage: "20", sort: "created_at", ord: "ASC",
			want: PageParams{Page: 3, PerPage: 20, SortBy: "created_at", SortOrder: "asc"},
		},
		{name: "per_page above max is clamped", perPage: "500", want: PageParams{Page: 1, PerPage: MaxPerPage, SortBy: "name", SortOrder: "desc"}},
		{name: "per_page below one is clamped", perPage: "0", want: PageParams{Page: 1, PerPage: 1, SortBy: "name", SortOrder: "desc"}},
		{name: "negative per_page", perPage: "-4", want: PageParams{Page: 1, PerPage: 1, SortBy: "name", SortOrder: "desc"}},
		{name: "malformed per_page", perPage: "x", want: PageParams{Page: 1, PerPage: DefaultPerPage, SortBy: "name", SortOrder: "desc"}},
		{
			name: "unknown sort and order", page: "0", sort: "cpf", ord: "sideways",
			want: PageParams{Page: 1, PerPage: DefaultPerPage, SortBy: "name", SortOrder: "desc"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParsePageParams(tc.page, tc.perPage, tc.sort, tc.ord, allowed, "name")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewPageMeta(t *testing.T) {
	assert.Equal(t, PageMeta{Total: 201, Page: 2, PerPage: 200, TotalPages: 2}, NewPageMeta(201, PageParams{Page: 2, PerPage: 200}))
	assert.Equal(t, PageMeta{Total: 0, Page: 1, PerPage: 50, TotalPages: 0}, NewPageMeta(0, PageParams{Page: 1, PerPage: 50}))
}
