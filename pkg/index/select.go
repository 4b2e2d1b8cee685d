package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sjyun/fongo-sub000/pkg/query"
)

// Plan describes how a read is answered
type Plan struct {
	Index string
	// Scan is set when no index could narrow the read and the primary
	// index returned every document
	Scan bool
	Keys []KeyField
}

// Select picks the index answering f. Among the usable indexes it prefers the
// one with the most key fields, then a unique one; earlier indexes win
// remaining ties. Without a usable index the primary index scans everything.
//
// The choice is greedy on purpose: it never looks at statistics.
func Select(indexes []*Index, primary *Index, f *query.Filter) (*Index, Plan) {
	var best *Index
	for _, idx := range indexes {
		if !idx.Usable(f) {
			continue
		}
		if best == nil || better(idx, best) {
			best = idx
		}
	}
	if best == nil {
		return primary, Plan{Index: primary.name, Scan: true, Keys: primary.Keys()}
	}
	return best, Plan{Index: best.name, Keys: best.Keys()}
}

func better(a, b *Index) bool {
	if len(a.paths) != len(b.paths) {
		return len(a.paths) > len(b.paths)
	}
	return a.unique && !b.unique
}

// Candidates selects an index for f and retrieves from it
func Candidates(indexes []*Index, primary *Index, f *query.Filter) (*roaring.Bitmap, Plan) {
	idx, plan := Select(indexes, primary, f)
	if plan.Scan {
		primary.lookups.Add(1)
		return primary.All(), plan
	}
	return idx.Retrieve(f), plan
}
