// Package tabular implements the data bank's table browser: paginated,
// free-text searchable reads over any table the store exposes, plus bulk
// upload into an existing table.
package tabular

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
)

const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Options bounds what a single request may ask of the store.
type Options struct {
	DefaultLimit int           // page size when the caller gives none or a bad one
	MaxLimit     int           // larger page sizes are clamped to this
	QueryTimeout time.Duration // deadline for introspection, count and fetch together
}

// DefaultOptions returns limits suitable for an interactive UI.
func DefaultOptions() Options {
	return Options{
		DefaultLimit: DefaultLimit,
		MaxLimit:     MaxLimit,
		QueryTimeout: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = MaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	return o
}

// Query is one page request against one table.
type Query struct {
	Table  string
	Page   int
	Limit  int
	Search string
}

// Normalize clamps Page and Limit into range instead of rejecting them:
// a page below 1 becomes 1, a limit below 1 becomes the default and a limit
// above the maximum becomes the maximum. Page is capped so that Offset
// cannot overflow; such a page lies past the end of any table.
func (q Query) Normalize(o Options) Query {
	o = o.withDefaults()
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit < 1:
		q.Limit = o.DefaultLimit
	case q.Limit > o.MaxLimit:
		q.Limit = o.MaxLimit
	}
	if maxPage := math.MaxInt / q.Limit; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}

// Offset is the number of matching rows before the requested page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ParseInt reads a page or limit parameter. Anything that is not a base-10
// integer yields 0, which Normalize then replaces.
func ParseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ResultPage is one page of matching rows. Total counts every row that
// matches the search, not just the ones on this page.
type ResultPage struct {
	Records    []database.Record `json:"records"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int64             `json:"totalPages"`
}

func totalPages(total int64, limit int) int64 {
	if total <= 0 || limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}
