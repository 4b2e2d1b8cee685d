package index

import (
	"time"
)

// IndexStats is a snapshot of an index's size and usage
type IndexStats struct {
	Name string

	Entries      int  // indexed documents
	DistinctKeys int  // number of buckets (cardinality)
	Multikey     bool // some key tuple contains an array
	GeoCells     int  // occupied geohash cells, 0 without a geo key

	Lookups     int64     // Retrieve calls served
	LastUpdated time.Time // last write to the index
}

// Selectivity is the share of distinct keys among entries (0.0 to 1.0).
// 1.0 means every entry has its own key.
func (s IndexStats) Selectivity() float64 {
	if s.Entries == 0 {
		return 1.0
	}
	return float64(s.DistinctKeys) / float64(s.Entries)
}

// ToMap converts statistics to a map for display
func (s IndexStats) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"name":          s.Name,
		"entries":       s.Entries,
		"distinct_keys": s.DistinctKeys,
		"selectivity":   s.Selectivity(),
		"multikey":      s.Multikey,
		"geo_cells":     s.GeoCells,
		"lookups":       s.Lookups,
		"last_updated":  s.LastUpdated,
	}
}
