package compare

import (
	"math"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// SortField is one key of a sort specification
type SortField struct {
	Path      string
	Ascending bool
}

// DocumentComparator orders two documents
type DocumentComparator func(a, b *document.Document) int

// ParseSort reads a sort specification such as {a: 1, "b.c": -1}. Directions
// may be any numeric value; its sign picks the direction.
func ParseSort(spec *document.Document) ([]SortField, error) {
	if spec == nil {
		return nil, nil
	}
	fields := make([]SortField, 0, spec.Len())
	for _, key := range spec.Keys() {
		v, _ := spec.Get(key)
		f, ok := v.Float64Value()
		if !ok {
			return nil, &SortSpecError{Field: key, Reason: "direction must be a number, got " + v.Type.String()}
		}
		if f == 0 || math.IsNaN(f) {
			return nil, &SortSpecError{Field: key, Reason: "direction must be positive or negative"}
		}
		fields = append(fields, SortField{Path: key, Ascending: f > 0})
	}
	return fields, nil
}

// SortSpec returns a comparator for the given sort specification. Keys are
// applied in order and the first non-zero comparison decides.
func SortSpec(spec *document.Document) (DocumentComparator, error) {
	fields, err := ParseSort(spec)
	if err != nil {
		return nil, err
	}
	return Sorter(fields), nil
}

// Sorter builds a comparator from already parsed sort fields
func Sorter(fields []SortField) DocumentComparator {
	return func(a, b *document.Document) int {
		for _, f := range fields {
			c := Compare(SortKey(a, f.Path, f.Ascending), SortKey(b, f.Path, f.Ascending))
			if c == 0 {
				continue
			}
			if !f.Ascending {
				return -c
			}
			return c
		}
		return 0
	}
}

// SortKey picks the value a document sorts by on path. Arrays contribute
// their elements; ascending sorts use the smallest candidate and descending
// sorts the largest. A missing path sorts as null.
func SortKey(doc *document.Document, path string, ascending bool) document.Value {
	var candidates []document.Value
	for _, v := range doc.Resolve(path) {
		if arr, ok := v.Array(); ok && len(arr) > 0 {
			candidates = append(candidates, arr...)
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return document.Null()
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		cmp := Compare(c, best)
		if (ascending && cmp < 0) || (!ascending && cmp > 0) {
			best = c
		}
	}
	return best
}
