package query

import (
	"github.com/sjyun/fongo-sub000/pkg/compare"
)

// Query represents a database query: a compiled filter plus the ordering,
// paging and projection applied to its matches
type Query struct {
	filter     *Filter
	projection *Projection
	sort       []compare.SortField
	limit      int
	skip       int
}

// NewQuery creates a new query
func NewQuery(filter *Filter) *Query {
	if filter == nil {
		filter = MustCompile(nil)
	}
	return &Query{filter: filter}
}

// WithProjection sets the projection
func (q *Query) WithProjection(projection *Projection) *Query {
	q.projection = projection
	return q
}

// WithSort sets the sort order
func (q *Query) WithSort(fields []compare.SortField) *Query {
	q.sort = fields
	return q
}

// WithLimit sets the limit; 0 means no limit
func (q *Query) WithLimit(limit int) *Query {
	q.limit = limit
	return q
}

// WithSkip sets the skip
func (q *Query) WithSkip(skip int) *Query {
	q.skip = skip
	return q
}

// GetFilter returns the compiled filter
func (q *Query) GetFilter() *Filter {
	return q.filter
}

// GetProjection returns the projection, nil when every field is returned
func (q *Query) GetProjection() *Projection {
	return q.projection
}

// GetSort returns the sort fields
func (q *Query) GetSort() []compare.SortField {
	return q.sort
}

// GetLimit returns the limit
func (q *Query) GetLimit() int {
	return q.limit
}

// GetSkip returns the skip
func (q *Query) GetSkip() int {
	return q.skip
}
