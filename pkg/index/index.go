package index

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/geo"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

// Handle addresses a document slot in the collection store
type Handle = uint32

// PrimaryName is the name of the index every collection keeps on _id
const PrimaryName = "_id_"

// Config holds configuration for creating an index
type Config struct {
	Name   string
	Keys   []KeyField
	Unique bool
	// Sparse indexes skip documents that have none of the key fields
	Sparse bool
	// GeohashPrecision is the cell size used by 2d and 2dsphere keys
	GeohashPrecision uint
}

// bucket holds the documents whose key tuples compare equal. key is the
// tuple of the first document added; the others may differ in numeric kind.
type bucket struct {
	key     *document.Document
	handles *roaring.Bitmap
}

// entry is what the index remembers about one document
type entry struct {
	hash     uint64
	key      *document.Document
	multikey bool
	cells    []string
	unhashed bool
}

// Index maps key tuples, the projection of a document onto the key paths, to
// the handles of the documents that project to them.
//
// An Index is not safe for concurrent mutation; the owning collection
// serializes writes.
type Index struct {
	name    string
	keys    []KeyField
	paths   []string
	unique  bool
	sparse  bool
	geoPath string
	geoMode geo.Mode

	precision uint

	buckets  map[uint64][]*bucket
	entries  map[Handle]*entry
	all      *roaring.Bitmap
	multikey int

	// geohash cell -> handles with a location in that cell
	cells map[string]*roaring.Bitmap
	// handles with locations that cannot be hashed
	unhashed *roaring.Bitmap

	lookups     atomic.Int64
	lastUpdated atomic.Int64
}

// New creates an empty index
func New(config *Config) (*Index, error) {
	if len(config.Keys) == 0 {
		return nil, fmt.Errorf("%w: index must have at least one field", ErrInvalidKeySpec)
	}
	idx := &Index{
		name:      config.Name,
		keys:      append([]KeyField(nil), config.Keys...),
		unique:    config.Unique,
		sparse:    config.Sparse,
		precision: config.GeohashPrecision,
		buckets:   make(map[uint64][]*bucket),
		entries:   make(map[Handle]*entry),
		all:       roaring.New(),
		cells:     make(map[string]*roaring.Bitmap),
		unhashed:  roaring.New(),
	}
	if idx.name == "" {
		idx.name = DefaultName(idx.keys)
	}
	if idx.precision == 0 {
		idx.precision = geo.DefaultGeohashPrecision
	}

	seen := make(map[string]bool, len(idx.keys))
	for _, k := range idx.keys {
		if k.Path == "" || strings.HasPrefix(k.Path, "$") {
			return nil, fmt.Errorf("%w: invalid key path %q", ErrInvalidKeySpec, k.Path)
		}
		if seen[k.Path] {
			return nil, fmt.Errorf("%w: duplicate key path %q", ErrInvalidKeySpec, k.Path)
		}
		seen[k.Path] = true
		idx.paths = append(idx.paths, k.Path)

		if k.Kind.IsGeo() {
			if idx.geoPath != "" {
				return nil, fmt.Errorf("%w: only one geo key is allowed", ErrInvalidKeySpec)
			}
			idx.geoPath = k.Path
			idx.geoMode = geo.Planar
			if k.Kind == Geo2DSphere {
				idx.geoMode = geo.Spherical
			}
		}
	}
	idx.touch()
	return idx, nil
}

// Name returns the index name
func (idx *Index) Name() string { return idx.name }

// Keys returns the key specification
func (idx *Index) Keys() []KeyField { return append([]KeyField(nil), idx.keys...) }

// Paths returns the key paths in key order
func (idx *Index) Paths() []string { return append([]string(nil), idx.paths...) }

// IsUnique reports whether the index rejects duplicate key tuples
func (idx *Index) IsUnique() bool { return idx.unique }

// IsSparse reports whether documents without key fields are skipped
func (idx *Index) IsSparse() bool { return idx.sparse }

// IsGeo reports whether the index has a 2d or 2dsphere key
func (idx *Index) IsGeo() bool { return idx.geoPath != "" }

// Len returns the number of indexed documents
func (idx *Index) Len() int { return len(idx.entries) }

// Key returns the key tuple of doc. ok is false when a sparse index skips doc.
func (idx *Index) Key(doc *document.Document) (key *document.Document, ok bool) {
	key = document.Project(doc, idx.paths)
	if idx.sparse && key.Len() == 0 {
		return nil, false
	}
	return key, true
}

// Check reports the DuplicateKeyError that indexing doc under h would raise,
// without changing the index
func (idx *Index) Check(h Handle, doc *document.Document) error {
	if !idx.unique {
		return nil
	}
	key, ok := idx.Key(doc)
	if !ok {
		return nil
	}
	return idx.checkKey(h, compare.HashDocument(key), key)
}

func (idx *Index) checkKey(h Handle, hash uint64, key *document.Document) error {
	b := idx.find(hash, key)
	if b == nil {
		return nil
	}
	if n := b.handles.GetCardinality(); n > 1 || (n == 1 && !b.handles.Contains(h)) {
		return &DuplicateKeyError{Index: idx.name, Key: key}
	}
	return nil
}

// AddOrUpdate indexes doc under h, replacing whatever h was indexed under
// before. A unique violation leaves the index unchanged.
func (idx *Index) AddOrUpdate(h Handle, doc *document.Document) error {
	key, ok := idx.Key(doc)
	if !ok {
		idx.Remove(h)
		return nil
	}
	hash := compare.HashDocument(key)
	if idx.unique {
		if err := idx.checkKey(h, hash, key); err != nil {
			return err
		}
	}

	idx.Remove(h)

	e := &entry{hash: hash, key: key, multikey: hasArray(document.Doc(key))}
	b := idx.find(hash, key)
	if b == nil {
		b = &bucket{key: key, handles: roaring.New()}
		idx.buckets[hash] = append(idx.buckets[hash], b)
	}
	b.handles.Add(h)
	idx.all.Add(h)
	if e.multikey {
		idx.multikey++
	}
	if idx.geoPath != "" {
		idx.addLocations(h, e, doc)
	}
	idx.entries[h] = e
	idx.touch()
	return nil
}

// Remove drops h from the index. Emptied buckets are discarded.
func (idx *Index) Remove(h Handle) {
	e, ok := idx.entries[h]
	if !ok {
		return
	}
	delete(idx.entries, h)
	idx.all.Remove(h)
	if e.multikey {
		idx.multikey--
	}

	list := idx.buckets[e.hash]
	for i, b := range list {
		if !compare.Equal(document.Doc(b.key), document.Doc(e.key)) {
			continue
		}
		b.handles.Remove(h)
		if b.handles.IsEmpty() {
			list = append(list[:i], list[i+1:]...)
		}
		break
	}
	if len(list) == 0 {
		delete(idx.buckets, e.hash)
	} else {
		idx.buckets[e.hash] = list
	}

	for _, cell := range e.cells {
		if bm := idx.cells[cell]; bm != nil {
			bm.Remove(h)
			if bm.IsEmpty() {
				delete(idx.cells, cell)
			}
		}
	}
	if e.unhashed {
		idx.unhashed.Remove(h)
	}
	idx.touch()
}

// Clear empties the index
func (idx *Index) Clear() {
	idx.buckets = make(map[uint64][]*bucket)
	idx.entries = make(map[Handle]*entry)
	idx.all = roaring.New()
	idx.cells = make(map[string]*roaring.Bitmap)
	idx.unhashed = roaring.New()
	idx.multikey = 0
	idx.touch()
}

// CanHandle reports whether every key path is constrained by one of the
// query fields, directly or through a path below it
func (idx *Index) CanHandle(fields []string) bool {
	for _, p := range idx.paths {
		covered := false
		for _, f := range fields {
			if f == p || strings.HasPrefix(f, p+".") {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Usable reports whether Retrieve returns every document f matches. Besides
// CanHandle, a sparse index cannot answer queries that documents without the
// key fields could satisfy.
func (idx *Index) Usable(f *query.Filter) bool {
	if f == nil || !idx.CanHandle(f.Fields()) {
		return false
	}
	if idx.sparse && f.Restrict(idx.paths).Matches(document.NewDocument()) {
		return false
	}
	return true
}

// All returns the handles of every indexed document
func (idx *Index) All() *roaring.Bitmap {
	return idx.all.Clone()
}

// Retrieve returns the handles of a superset of the indexed documents that f
// matches. The caller still applies f to each candidate.
func (idx *Index) Retrieve(f *query.Filter) *roaring.Bitmap {
	idx.lookups.Add(1)
	if f == nil {
		return idx.All()
	}

	if idx.geoPath != "" {
		if bb, ok := f.SpatialBounds(idx.geoPath); ok {
			return idx.retrieveSpatial(bb)
		}
	}

	if idx.multikey == 0 {
		if h, ok := idx.lookup(f); ok {
			return h
		}
	}

	restricted := f.Restrict(idx.paths)
	if len(restricted.Fields()) == 0 {
		return idx.All()
	}
	// tuples in one bucket can differ in kind, which $type sees, so each
	// document is tested on its own key
	out := roaring.New()
	for h, e := range idx.entries {
		if restricted.Matches(e.key) {
			out.Add(h)
		}
	}
	return out
}

// lookup finds the bucket of the key tuple when f pins every key field to a
// scalar
func (idx *Index) lookup(f *query.Filter) (*roaring.Bitmap, bool) {
	seed := document.NewDocument()
	for _, p := range idx.paths {
		v, ok := f.Equality(p)
		if !ok {
			return nil, false
		}
		seed.SetPath(p, v)
	}
	key := document.Project(seed, idx.paths)
	if b := idx.find(compare.HashDocument(key), key); b != nil {
		return b.handles.Clone(), true
	}
	return roaring.New(), true
}

func (idx *Index) find(hash uint64, key *document.Document) *bucket {
	for _, b := range idx.buckets[hash] {
		if compare.Equal(document.Doc(b.key), document.Doc(key)) {
			return b
		}
	}
	return nil
}

// addLocations records the geohash cells of every location doc holds at the
// geo key path
func (idx *Index) addLocations(h Handle, e *entry, doc *document.Document) {
	seen := make(map[string]bool)
	for _, v := range doc.Resolve(idx.geoPath) {
		for _, p := range geo.Points(v) {
			cell, ok := geo.Geohash(p, idx.precision)
			if !ok {
				e.unhashed = true
				continue
			}
			if seen[cell] {
				continue
			}
			seen[cell] = true
			e.cells = append(e.cells, cell)
			bm := idx.cells[cell]
			if bm == nil {
				bm = roaring.New()
				idx.cells[cell] = bm
			}
			bm.Add(h)
		}
	}
	if e.unhashed {
		idx.unhashed.Add(h)
	}
}

// retrieveSpatial returns the documents with a location in a cell that
// overlaps bb, plus those whose locations could not be hashed
func (idx *Index) retrieveSpatial(bb geo.BoundingBox) *roaring.Bitmap {
	out := idx.unhashed.Clone()
	for cell, bm := range idx.cells {
		if geo.CellBounds(cell).Intersects(bb) {
			out.Or(bm)
		}
	}
	return out
}

// Stats returns a snapshot of the index statistics
func (idx *Index) Stats() IndexStats {
	distinct := 0
	for _, list := range idx.buckets {
		distinct += len(list)
	}
	return IndexStats{
		Name:         idx.name,
		Entries:      len(idx.entries),
		DistinctKeys: distinct,
		Multikey:     idx.multikey > 0,
		GeoCells:     len(idx.cells),
		Lookups:      idx.lookups.Load(),
		LastUpdated:  time.Unix(0, idx.lastUpdated.Load()),
	}
}

func (idx *Index) touch() {
	idx.lastUpdated.Store(time.Now().UnixNano())
}

func hasArray(v document.Value) bool {
	switch v.Type {
	case document.TypeArray:
		return true
	case document.TypeDocument:
		doc, _ := v.Document()
		for _, k := range doc.Keys() {
			child, _ := doc.Get(k)
			if hasArray(child) {
				return true
			}
		}
	}
	return false
}
