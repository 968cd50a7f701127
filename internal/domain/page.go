package domain

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PaginationParams carries page/limit values from the HTTP layer to the repository.
// Page is 1-indexed.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams builds PaginationParams, falling back to page 1 and
// DefaultPageSize for non-positive values and capping the limit at MaxPageSize.
func NewPaginationParams(page, limit int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: DefaultPageSize}
	if page >= 1 {
		p.Page = page
	}
	if limit >= 1 {
		p.Limit = min(limit, MaxPageSize)
	}
	return p
}

// Offset returns the zero-based row offset for a SQL OFFSET clause.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TripPage is one page of a trip listing.
type TripPage struct {
	Trips []*Trip
	Total int
	Page  int
	Limit int
}
