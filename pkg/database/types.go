package database

import (
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/index"
)

// QueryOptions holds options for queries. Nil documents mean no projection
// and natural order.
type QueryOptions struct {
	Projection *document.Document
	Sort       *document.Document
	Limit      int
	Skip       int
}

// UpdateResult reports the outcome of an update
type UpdateResult struct {
	Matched  int
	Modified int
	// UpsertedID is set when the update inserted a document
	UpsertedID *document.Value
}

// FindAndModifyOptions selects what FindAndModify does with the first
// matching document. Exactly one of Update and Remove must be set.
type FindAndModifyOptions struct {
	Sort       *document.Document
	Update     *document.Document
	Remove     bool
	Upsert     bool
	ReturnNew  bool
	Projection *document.Document
}

// IndexOptions holds options for CreateIndex
type IndexOptions struct {
	Name   string
	Unique bool
	Sparse bool
}

// IndexInfo describes one index of a collection
type IndexInfo struct {
	Name   string
	Keys   *document.Document
	Unique bool
	Sparse bool
	Stats  index.IndexStats
}

// CollectionStats is a snapshot of a collection
type CollectionStats struct {
	Name         string
	Count        int
	MaxDocuments int
	Indexes      []index.IndexStats
}

// ExplainResult describes how a query would run
type ExplainResult struct {
	Collection string
	Index      string
	Keys       *document.Document
	Scan       bool
	Candidates int
	Matched    int
	Total      int
}
