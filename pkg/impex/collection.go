// Package impex loads and dumps collection fixtures as extended JSON,
// optionally compressed with zstd, snappy or gzip.
package impex

import (
	"fmt"
	"io"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// Options holds export and import options
type Options struct {
	Compression Compression
	// Level is the compression level; 0 picks the default
	Level int
	// Pretty indents exported JSON
	Pretty bool
	// Filter restricts which documents are exported
	Filter *document.Document
	// HexObjectIDs converts hex string _ids to ObjectIDs on import
	HexObjectIDs bool
}

// Source is a collection that documents can be exported from
type Source interface {
	Find(filter *document.Document) ([]*document.Document, error)
}

// Sink is a collection that documents can be imported into
type Sink interface {
	InsertMany(docs []*document.Document) ([]document.Value, error)
}

// ExportJSON writes the matching documents of coll to w in store order and
// returns how many were written
func ExportJSON(coll Source, w io.Writer, opts *Options) (int, error) {
	if opts == nil {
		opts = &Options{}
	}
	docs, err := coll.Find(opts.Filter)
	if err != nil {
		return 0, fmt.Errorf("failed to read documents: %w", err)
	}

	cw, err := compressWriter(w, opts.Compression, opts.Level)
	if err != nil {
		return 0, err
	}
	if err := NewJSONExporter(opts.Pretty).Export(cw, docs); err != nil {
		_ = cw.Close()
		return 0, err
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush %s stream: %w", opts.Compression, err)
	}
	return len(docs), nil
}

// ImportJSON reads documents from r and inserts them into coll in order.
// Insertion stops at the first rejected document; the count of documents
// inserted before it is returned along with the error.
func ImportJSON(coll Sink, r io.Reader, opts *Options) (int, error) {
	if opts == nil {
		opts = &Options{}
	}

	r, release, err := decompressReader(r, opts.Compression)
	if err != nil {
		return 0, err
	}
	defer release()

	importer := NewJSONImporter()
	importer.HexObjectIDs = opts.HexObjectIDs
	docs, err := importer.Import(r)
	if err != nil {
		return 0, err
	}
	ids, err := coll.InsertMany(docs)
	return len(ids), err
}
