// Package paging implements fixed-size, 1-indexed page windows over an
// ordered result set.
package paging

import "math"

// DefaultSize is the page size used by every list operation.
const DefaultSize = 10

// Request selects one page of results.
type Request struct {
	Page int
	Size int
}

// Page returns a Request for page n with the default size. Pages below 1
// are clamped to 1; pages whose offset would overflow an int are clamped to
// the last representable page.
func Page(n int) Request {
	return Request{Page: n, Size: DefaultSize}.normalize()
}

func (r Request) normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Size < 1 {
		r.Size = DefaultSize
	}
	if r.Page > math.MaxInt/r.Size {
		r.Page = math.MaxInt / r.Size
	}
	return r
}

// Limit returns the SQL LIMIT value.
func (r Request) Limit() int { return r.normalize().Size }

// Offset returns the SQL OFFSET value.
func (r Request) Offset() int {
	n := r.normalize()
	return (n.Page - 1) * n.Size
}

// Bounds returns the half-open index range [lo, hi) of this page within a
// result set of total items. A page past the end yields lo == hi == total.
func (r Request) Bounds(total int) (lo, hi int) {
	lo = r.Offset()
	if lo > total {
		lo = total
	}
	hi = lo + r.Limit()
	if hi > total {
		hi = total
	}
	return lo, hi
}

// Metadata describes where a page sits in the full result set.
type Metadata struct {
	CurrentPage  int  `json:"current_page"`
	PageSize     int  `json:"page_size"`
	FirstPage    int  `json:"first_page"`
	LastPage     int  `json:"last_page"`
	TotalRecords int  `json:"total_records"`
	IsPaginated  bool `json:"is_paginated"`
}

// NewMetadata computes page metadata from the total record count.
func NewMetadata(total int, r Request) Metadata {
	r = r.normalize()
	last := 1
	if total > 0 {
		last = int(math.Ceil(float64(total) / float64(r.Size)))
	}
	return Metadata{
		CurrentPage:  r.Page,
		PageSize:     r.Size,
		FirstPage:    1,
		LastPage:     last,
		TotalRecords: total,
		IsPaginated:  total > r.Size,
	}
}

// Slice returns the page of items selected by r.
func Slice[T any](items []T, r Request) []T {
	lo, hi := r.Bounds(len(items))
	out := make([]T, hi-lo)
	copy(out, items[lo:hi])
	return out
}

// PageOf is one window of a listing together with its metadata.
type PageOf[T any] struct {
	Items    []T      `json:"items"`
	Metadata Metadata `json:"metadata"`
}

// NewPage wraps items fetched for r out of total.
func NewPage[T any](items []T, total int, r Request) PageOf[T] {
	if items == nil {
		items = []T{}
	}
	return PageOf[T]{Items: items, Metadata: NewMetadata(total, r)}
}
