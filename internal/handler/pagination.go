package handler

import (
	"net/http"
	"strconv"
)

// Pod history paging.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads ?limit= and ?offset=. Missing or malformed values
// fall back to the defaults and an oversized limit is clamped to MaxLimit.
func ParsePagination(r *http.Request) PaginationParams {
	q := r.URL.Query()
	page := PaginationParams{Limit: DefaultLimit}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		page.Limit = min(limit, MaxLimit)
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		page.Offset = offset
	}

	return page
}
