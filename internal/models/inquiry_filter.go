package models

import (
	"math"
	"strings"
)

// Status filter values accepted on top of the stored states.
const (
	StatusFilterDefault = ""
	StatusFilterAll     = "all"
	StatusFilterSent    = "sent"
)

// Sortable columns for inquiry listings.
const (
	SortByCreatedAt = "created_at"
	SortByEmail     = "email"
	SortBySubject   = "subject"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps the row offset inside a Postgres integer.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// InquiryFilter captures list/search/sort/pagination criteria.
type InquiryFilter struct {
	Status    string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Normalize clamps pagination and falls back to the default sort for unknown
// columns or directions. It does not validate Status.
func (f InquiryFilter) Normalize() InquiryFilter {
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.Search = strings.TrimSpace(f.Search)

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}

	switch strings.ToLower(strings.TrimSpace(f.SortBy)) {
	case SortByEmail:
		f.SortBy = SortByEmail
	case SortBySubject:
		f.SortBy = SortBySubject
	default:
		f.SortBy = SortByCreatedAt
	}

	order := strings.ToUpper(strings.TrimSpace(f.SortOrder))
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	f.SortOrder = order
	return f
}

// Offset returns the row offset for the current page.
func (f InquiryFilter) Offset() int {
	page, size := f.Page, f.PageSize
	if page < 1 || size < 1 {
		return 0
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return (page - 1) * size
}

// ValidStatusFilter reports whether raw is an accepted status filter.
func ValidStatusFilter(raw string) bool {
	switch raw {
	case StatusFilterDefault, StatusFilterAll, StatusFilterSent:
		return true
	}
	return InquiryStatus(raw).Valid()
}
