// Package paging holds the page request and response metadata shared by list
// endpoints.
package paging

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Request selects a page of results. Page is 1-based.
type Request struct {
	Page    int
	PerPage int
}

// Normalize clamps the request to sane bounds.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PerPage < 1 {
		r.PerPage = DefaultPerPage
	}
	if r.PerPage > MaxPerPage {
		r.PerPage = MaxPerPage
	}
	return r
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	r = r.Normalize()
	return (r.Page - 1) * r.PerPage
}

// Limit returns the page size.
func (r Request) Limit() int {
	return r.Normalize().PerPage
}

// Meta describes the returned page.
type Meta struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

// NewMeta builds page metadata for total matching rows.
func NewMeta(r Request, total int) Meta {
	r = r.Normalize()
	pages := (total + r.PerPage - 1) / r.PerPage
	return Meta{
		CurrentPage:  r.Page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: r.PerPage,
	}
}
