package query

import (
	"sort"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
)

// Executor executes queries against a set of candidate documents. The
// candidates are read, never modified.
type Executor struct {
	documents []*document.Document
}

// NewExecutor creates a new query executor
func NewExecutor(documents []*document.Document) *Executor {
	return &Executor{documents: documents}
}

// Execute executes a query and returns matching documents
func (e *Executor) Execute(query *Query) ([]*document.Document, error) {
	results, err := e.filter(query.GetFilter(), e.documents)
	if err != nil {
		return nil, err
	}
	return finish(query, results), nil
}

// Count returns the number of documents matching the query, honoring skip,
// limit and the $near cap
func (e *Executor) Count(query *Query) (int, error) {
	results, err := e.filter(query.GetFilter(), e.documents)
	if err != nil {
		return 0, err
	}
	return len(page(query, order(query, results))), nil
}

func (e *Executor) filter(f *Filter, docs []*document.Document) ([]*document.Document, error) {
	results := make([]*document.Document, 0)
	for _, doc := range docs {
		matches, err := f.Match(doc)
		if err != nil {
			return nil, err
		}
		if matches {
			results = append(results, doc)
		}
	}
	return results, nil
}

// finish orders, pages and projects the matches
func finish(query *Query, results []*document.Document) []*document.Document {
	results = page(query, order(query, results))
	if p := query.GetProjection(); p != nil {
		for i, doc := range results {
			results[i] = p.Apply(doc)
		}
	}
	return results
}

// order applies the sort. A $near query keeps only the documents within its
// near limit, nearest first; an explicit sort then reorders those.
func order(query *Query, results []*document.Document) []*document.Document {
	f := query.GetFilter()
	if f.IsNear() {
		distances := make(map[*document.Document]float64, len(results))
		for _, doc := range results {
			distances[doc], _ = f.Distance(doc)
		}
		sort.SliceStable(results, func(i, j int) bool {
			return distances[results[i]] < distances[results[j]]
		})
		if limit := f.NearLimit(); limit > 0 && len(results) > limit {
			results = results[:limit]
		}
	}
	if len(query.GetSort()) > 0 {
		cmp := compare.Sorter(query.GetSort())
		sort.SliceStable(results, func(i, j int) bool {
			return cmp(results[i], results[j]) < 0
		})
	}
	return results
}

func page(query *Query, results []*document.Document) []*document.Document {
	if skip := query.GetSkip(); skip > 0 {
		if skip >= len(results) {
			return []*document.Document{}
		}
		results = results[skip:]
	}
	if limit := query.GetLimit(); limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
