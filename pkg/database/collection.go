package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/index"
	"github.com/sjyun/fongo-sub000/pkg/metrics"
	"github.com/sjyun/fongo-sub000/pkg/query"
	"github.com/sjyun/fongo-sub000/pkg/update"
)

// Collection represents a collection of documents.
//
// Every write runs inside one exclusive section that covers the store and all
// indexes, so no reader observes a document indexed under a stale key.
type Collection struct {
	name    string
	db      *Database
	store   *store
	primary *index.Index
	indexes []*index.Index // creation order, primary first
	logger  *zap.Logger
	// gone is set once the collection was dropped or its database closed
	gone error
	mu   sync.RWMutex
}

func newCollection(db *Database, name string) *Collection {
	primary, _ := index.New(&index.Config{
		Name:             index.PrimaryName,
		Keys:             []index.KeyField{{Path: document.IDField, Kind: index.Ascending}},
		Unique:           true,
		GeohashPrecision: db.config.GeohashPrecision,
	})
	return &Collection{
		name:    name,
		db:      db,
		store:   newStore(),
		primary: primary,
		indexes: []*index.Index{primary},
		logger:  db.logger.With(zap.String("collection", name)),
	}
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// InsertOne inserts a copy of doc and returns its _id. A missing _id is
// generated.
func (c *Collection) InsertOne(doc *document.Document) (id document.Value, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpInsert, start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return document.Value{}, c.gone
	}
	id, _, err = c.insertLocked(doc)
	return id, err
}

// InsertMany inserts documents in order and stops at the first failure.
// Documents inserted before the failure stay inserted.
func (c *Collection) InsertMany(docs []*document.Document) (ids []document.Value, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpInsert, start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return nil, c.gone
	}
	ids = make([]document.Value, 0, len(docs))
	for i, doc := range docs {
		id, _, err := c.insertLocked(doc)
		if err != nil {
			return ids, fmt.Errorf("insert document %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Find finds all documents matching the filter
func (c *Collection) Find(filter *document.Document) ([]*document.Document, error) {
	return c.FindWithOptions(filter, nil)
}

// FindWithOptions finds documents with query options. The returned
// documents are copies.
func (c *Collection) FindWithOptions(filter *document.Document, opts *QueryOptions) (results []*document.Document, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpFind, start, err) }()

	q, err := c.buildQuery(filter, opts)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.gone != nil {
		return nil, c.gone
	}
	matched, plan, examined, err := c.execute(q)
	defer func() { c.recordSlow(metrics.OpFind, start, filter, plan, examined, len(results), err) }()
	if err != nil {
		return nil, err
	}
	results = make([]*document.Document, len(matched))
	for i, doc := range matched {
		results[i] = doc.Clone()
	}
	return results, nil
}

// FindOne finds a single document matching the filter
func (c *Collection) FindOne(filter *document.Document) (*document.Document, error) {
	results, err := c.FindWithOptions(filter, &QueryOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrDocumentNotFound
	}
	return results[0], nil
}

// Count returns the number of documents matching the filter
func (c *Collection) Count(filter *document.Document) (n int, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpCount, start, err) }()

	f, err := c.compile(filter)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.gone != nil {
		return 0, c.gone
	}
	_, docs, plan := c.candidates(f)
	defer func() { c.recordSlow(metrics.OpCount, start, filter, plan, len(docs), n, err) }()
	return query.NewExecutor(docs).Count(query.NewQuery(f))
}

// Distinct returns the distinct values of field among the matching
// documents, in the order they are first seen. Array values contribute
// their elements.
func (c *Collection) Distinct(field string, filter *document.Document) (values []document.Value, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpDistinct, start, err) }()

	q, err := c.buildQuery(filter, nil)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.gone != nil {
		return nil, c.gone
	}
	matched, plan, examined, err := c.execute(q)
	defer func() { c.recordSlow(metrics.OpDistinct, start, filter, plan, examined, len(values), err) }()
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64][]document.Value)
	add := func(v document.Value) {
		h := compare.Hash(v)
		for _, s := range seen[h] {
			if compare.Equal(s, v) {
				return
			}
		}
		seen[h] = append(seen[h], v)
		values = append(values, v.Clone())
	}
	for _, doc := range matched {
		for _, v := range doc.Resolve(field) {
			if arr, ok := v.Array(); ok {
				for _, elem := range arr {
					add(elem)
				}
				continue
			}
			add(v)
		}
	}
	return values, nil
}

// Update applies upd to the first matching document, or to every matching
// document when multi is set. With upsert and no match, a document built
// from the filter's equality clauses is inserted and updated.
//
// A failure stops the update; documents already updated stay updated.
func (c *Collection) Update(filter, upd *document.Document, upsert, multi bool) (*UpdateResult, error) {
	return c.update(metrics.OpUpdate, filter, upd, upsert, multi, false)
}

// UpdateOne updates the first document matching the filter
func (c *Collection) UpdateOne(filter, upd *document.Document) (*UpdateResult, error) {
	return c.Update(filter, upd, false, false)
}

// UpdateMany updates every document matching the filter
func (c *Collection) UpdateMany(filter, upd *document.Document) (*UpdateResult, error) {
	return c.Update(filter, upd, false, true)
}

// ReplaceOne replaces the first matching document, keeping its _id
func (c *Collection) ReplaceOne(filter, replacement *document.Document, upsert bool) (*UpdateResult, error) {
	return c.update(metrics.OpReplace, filter, replacement, upsert, false, true)
}

func (c *Collection) update(op string, filter, upd *document.Document, upsert, multi, replacement bool) (result *UpdateResult, err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()

	f, err := c.compile(filter)
	if err != nil {
		return nil, err
	}
	u, err := c.compileUpdate(upd)
	if err != nil {
		return nil, err
	}
	switch {
	case replacement && !u.IsReplacement():
		return nil, ErrInvalidReplacement
	case multi && u.IsReplacement():
		return nil, ErrMultiReplacement
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return nil, c.gone
	}
	limit := 1
	if multi {
		limit = 0
	}
	handles, plan, examined, err := c.matchLocked(f, nil, limit)
	defer func() { c.recordSlow(op, start, filter, plan, examined, len(handles), err) }()
	if err != nil {
		return nil, err
	}

	result = &UpdateResult{Matched: len(handles)}
	if len(handles) == 0 && upsert {
		id, _, err := c.upsertLocked(f, u)
		if err != nil {
			return result, err
		}
		result.UpsertedID = &id
		return result, nil
	}
	for _, h := range handles {
		_, _, modified, err := c.applyLocked(h, f, u)
		if err != nil {
			return result, err
		}
		if modified {
			result.Modified++
		}
	}
	return result, nil
}

// FindAndModify updates or removes the first matching document in sort
// order and returns it as it was before, or after when ReturnNew is set.
// ErrDocumentNotFound is returned when nothing matched and nothing was
// upserted; an upsert without ReturnNew returns nil.
func (c *Collection) FindAndModify(filter *document.Document, opts *FindAndModifyOptions) (doc *document.Document, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpFindAndModify, start, err) }()

	if opts == nil || opts.Remove == (opts.Update != nil) {
		return nil, ErrInvalidFindAndModify
	}
	f, err := c.compile(filter)
	if err != nil {
		return nil, err
	}
	var sortFields []compare.SortField
	if opts.Sort != nil {
		if sortFields, err = compare.ParseSort(opts.Sort); err != nil {
			return nil, err
		}
	}
	projection, err := query.ParseProjection(opts.Projection)
	if err != nil {
		return nil, err
	}
	var u *update.Update
	if opts.Update != nil {
		if u, err = c.compileUpdate(opts.Update); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return nil, c.gone
	}
	handles, plan, examined, err := c.matchLocked(f, sortFields, 1)
	defer func() { c.recordSlow(metrics.OpFindAndModify, start, filter, plan, examined, len(handles), err) }()
	if err != nil {
		return nil, err
	}

	if len(handles) == 0 {
		if !opts.Upsert || u == nil {
			return nil, ErrDocumentNotFound
		}
		_, inserted, err := c.upsertLocked(f, u)
		if err != nil || !opts.ReturnNew {
			return nil, err
		}
		return projection.Apply(inserted).Clone(), nil
	}

	h := handles[0]
	if opts.Remove {
		old := c.store.get(h)
		c.removeLocked(h)
		return projection.Apply(old).Clone(), nil
	}
	old, updated, _, err := c.applyLocked(h, f, u)
	if err != nil {
		return nil, err
	}
	if opts.ReturnNew {
		return projection.Apply(updated).Clone(), nil
	}
	return projection.Apply(old).Clone(), nil
}

// Remove deletes the matching documents, only the first one when justOne is
// set, and returns how many were deleted
func (c *Collection) Remove(filter *document.Document, justOne bool) (n int, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpDelete, start, err) }()

	f, err := c.compile(filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return 0, c.gone
	}
	limit := 0
	if justOne {
		limit = 1
	}
	handles, plan, examined, err := c.matchLocked(f, nil, limit)
	defer func() { c.recordSlow(metrics.OpDelete, start, filter, plan, examined, len(handles), err) }()
	if err != nil {
		return 0, err
	}
	for _, h := range handles {
		c.removeLocked(h)
	}
	return len(handles), nil
}

// DeleteOne deletes the first document matching the filter
func (c *Collection) DeleteOne(filter *document.Document) error {
	n, err := c.Remove(filter, true)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteMany deletes every document matching the filter
func (c *Collection) DeleteMany(filter *document.Document) (int, error) {
	return c.Remove(filter, false)
}

// CreateIndex builds an index over the current documents and returns its
// name. Creating an index that already exists with the same keys and
// options is a no-op. A unique index that the existing documents violate is
// not created.
func (c *Collection) CreateIndex(keys *document.Document, opts *IndexOptions) (name string, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpCreateIndex, start, err) }()

	if opts == nil {
		opts = &IndexOptions{}
	}
	fields, err := index.ParseKeys(keys)
	if err != nil {
		return "", err
	}
	name = opts.Name
	if name == "" {
		name = index.DefaultName(fields)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return "", c.gone
	}
	if sameKeys(c.primary.Keys(), fields) {
		return index.PrimaryName, nil
	}
	for _, idx := range c.indexes {
		if idx.Name() != name {
			continue
		}
		if sameKeys(idx.Keys(), fields) && idx.IsUnique() == opts.Unique && idx.IsSparse() == opts.Sparse {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	idx, err := index.New(&index.Config{
		Name:             name,
		Keys:             fields,
		Unique:           opts.Unique,
		Sparse:           opts.Sparse,
		GeohashPrecision: c.db.config.GeohashPrecision,
	})
	if err != nil {
		return "", err
	}
	for _, h := range c.store.live.ToArray() {
		if err := idx.AddOrUpdate(h, c.store.get(h)); err != nil {
			return "", fmt.Errorf("failed to build index %s: %w", name, err)
		}
	}
	c.indexes = append(c.indexes, idx)
	c.logger.Info("index created", zap.String("index", name), zap.Bool("unique", opts.Unique), zap.Int("entries", idx.Len()))
	return name, nil
}

// DropIndex drops an index by name. The _id index cannot be dropped.
func (c *Collection) DropIndex(name string) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpDropIndex, start, err) }()

	if name == index.PrimaryName {
		return ErrPrimaryIndex
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone != nil {
		return c.gone
	}
	for i, idx := range c.indexes {
		if idx.Name() == name {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			c.logger.Info("index dropped", zap.String("index", name))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
}

// ListIndexes returns the indexes in creation order, _id first
func (c *Collection) ListIndexes() []IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]IndexInfo, 0, len(c.indexes))
	for _, idx := range c.indexes {
		infos = append(infos, IndexInfo{
			Name:   idx.Name(),
			Keys:   index.KeysDocument(idx.Keys()),
			Unique: idx.IsUnique(),
			Sparse: idx.IsSparse(),
			Stats:  idx.Stats(),
		})
	}
	return infos
}

// Drop removes the collection from its database
func (c *Collection) Drop() error {
	return c.db.DropCollection(c.name)
}

// Stats returns collection statistics
func (c *Collection) Stats() CollectionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CollectionStats{
		Name:         c.name,
		Count:        c.store.len(),
		MaxDocuments: c.db.config.MaxDocuments,
		Indexes:      make([]index.IndexStats, 0, len(c.indexes)),
	}
	for _, idx := range c.indexes {
		stats.Indexes = append(stats.Indexes, idx.Stats())
	}
	return stats
}

// Explain reports the index a query would use and how many documents it
// would examine and match
func (c *Collection) Explain(filter *document.Document, opts *QueryOptions) (*ExplainResult, error) {
	q, err := c.buildQuery(filter, opts)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.gone != nil {
		return nil, c.gone
	}
	matched, plan, examined, err := c.execute(q)
	if err != nil {
		return nil, err
	}
	return &ExplainResult{
		Collection: c.name,
		Index:      plan.Index,
		Keys:       index.KeysDocument(plan.Keys),
		Scan:       plan.Scan,
		Candidates: examined,
		Matched:    len(matched),
		Total:      c.store.len(),
	}, nil
}

// drop empties the collection and makes further operations fail with reason
func (c *Collection) drop(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.clear()
	for _, idx := range c.indexes {
		idx.Clear()
	}
	c.indexes = []*index.Index{c.primary}
	c.gone = reason
}

func (c *Collection) compile(filter *document.Document) (*query.Filter, error) {
	return query.Compile(filter, c.db.queryOptions()...)
}

func (c *Collection) compileUpdate(upd *document.Document) (*update.Update, error) {
	if upd == nil {
		upd = document.NewDocument()
	}
	return update.Compile(upd, update.WithClock(c.db.opts.clock))
}

func (c *Collection) buildQuery(filter *document.Document, opts *QueryOptions) (*query.Query, error) {
	f, err := c.compile(filter)
	if err != nil {
		return nil, err
	}
	q := query.NewQuery(f)
	if opts == nil {
		return q, nil
	}
	if opts.Sort != nil {
		fields, err := compare.ParseSort(opts.Sort)
		if err != nil {
			return nil, err
		}
		q.WithSort(fields)
	}
	projection, err := query.ParseProjection(opts.Projection)
	if err != nil {
		return nil, err
	}
	q.WithProjection(projection)
	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, fmt.Errorf("skip and limit must not be negative")
	}
	return q.WithSkip(opts.Skip).WithLimit(opts.Limit), nil
}

// candidates selects an index for f and returns the documents it yields in
// store order (caller must hold lock)
func (c *Collection) candidates(f *query.Filter) ([]index.Handle, []*document.Document, index.Plan) {
	bm, plan := index.Candidates(c.indexes, c.primary, f)
	c.db.metrics.IndexSelected(c.name, plan.Index, plan.Scan)
	c.logger.Debug("index selected", zap.String("index", plan.Index), zap.Bool("scan", plan.Scan))
	handles, docs := c.store.resolve(bm)
	return handles, docs, plan
}

// execute runs a read (caller must hold lock). Matches are the stored
// documents themselves unless a projection applies.
func (c *Collection) execute(q *query.Query) ([]*document.Document, index.Plan, int, error) {
	_, docs, plan := c.candidates(q.GetFilter())
	exec := query.NewExecutor(docs)

	var results []*document.Document
	var err error
	if t := c.db.config.ParallelThreshold; t > 0 && len(docs) >= t {
		results, err = exec.ExecuteParallel(context.Background(), q, &query.ParallelConfig{
			MinDocsForParallel: t,
			MaxWorkers:         c.db.config.MaxWorkers,
		})
	} else {
		results, err = exec.Execute(q)
	}
	return results, plan, len(docs), err
}

// matchLocked returns the handles of the matching documents in sort order,
// or store order without a sort; limit 0 returns all of them
func (c *Collection) matchLocked(f *query.Filter, sortFields []compare.SortField, limit int) ([]index.Handle, index.Plan, int, error) {
	handles, docs, plan := c.candidates(f)
	slot := make(map[*document.Document]index.Handle, len(docs))
	for i, doc := range docs {
		slot[doc] = handles[i]
	}

	q := query.NewQuery(f).WithSort(sortFields).WithLimit(limit)
	matched, err := query.NewExecutor(docs).Execute(q)
	if err != nil {
		return nil, plan, len(docs), err
	}
	out := make([]index.Handle, len(matched))
	for i, doc := range matched {
		out[i] = slot[doc]
	}
	return out, plan, len(docs), nil
}

// insertLocked validates doc against the capacity and every index before
// storing a copy of it
func (c *Collection) insertLocked(doc *document.Document) (document.Value, index.Handle, error) {
	if limit := c.db.config.MaxDocuments; limit > 0 && c.store.len() >= limit {
		return document.Value{}, 0, &CapacityError{Collection: c.name, Limit: limit}
	}

	d := document.NewDocument()
	if doc != nil {
		d = doc.Clone()
	}
	id, ok := d.ID()
	if !ok {
		id = c.db.opts.ids.NewID()
	}
	switch id.Type {
	case document.TypeArray, document.TypeRegex:
		return document.Value{}, 0, fmt.Errorf("%w: _id cannot be of type %s", ErrInvalidID, id.Type)
	}
	d.SetFirst(document.IDField, id)

	h, err := c.store.reserve()
	if err != nil {
		return document.Value{}, 0, err
	}
	for _, idx := range c.indexes {
		if err := idx.Check(h, d); err != nil {
			return document.Value{}, 0, err
		}
	}
	c.store.add(d)
	for _, idx := range c.indexes {
		if err := idx.AddOrUpdate(h, d); err != nil {
			c.removeLocked(h)
			return document.Value{}, 0, err
		}
	}
	c.db.metrics.SetDocuments(c.name, c.store.len())
	return id.Clone(), h, nil
}

// applyLocked updates the document at h. Nothing is written when the update
// leaves the document as it was.
func (c *Collection) applyLocked(h index.Handle, f *query.Filter, u *update.Update) (old, updated *document.Document, modified bool, err error) {
	old = c.store.get(h)
	updated, err = u.Apply(old, f, false)
	if err != nil {
		return nil, nil, false, err
	}
	if identical(document.Doc(old), document.Doc(updated)) {
		return old, old, false, nil
	}
	for _, idx := range c.indexes {
		if err := idx.Check(h, updated); err != nil {
			return nil, nil, false, err
		}
	}
	c.store.set(h, updated)
	for _, idx := range c.indexes {
		// Check passed for every index, so this cannot fail
		_ = idx.AddOrUpdate(h, updated)
	}
	return old, updated, true, nil
}

// upsertLocked inserts the document an update with no match creates
func (c *Collection) upsertLocked(f *query.Filter, u *update.Update) (document.Value, *document.Document, error) {
	doc, err := u.Apply(f.Seed(), f, true)
	if err != nil {
		return document.Value{}, nil, err
	}
	id, h, err := c.insertLocked(doc)
	if err != nil {
		return document.Value{}, nil, err
	}
	c.logger.Debug("upsert inserted document", zap.Stringer("_id", id))
	return id, c.store.get(h), nil
}

func (c *Collection) removeLocked(h index.Handle) {
	for _, idx := range c.indexes {
		idx.Remove(h)
	}
	c.store.remove(h)
	c.db.metrics.SetDocuments(c.name, c.store.len())
}

func (c *Collection) observe(op string, start time.Time, err error) {
	kind := errorKind(err)
	c.db.metrics.ObserveOperation(c.name, op, start, kind)
	if err == nil {
		return
	}
	var scriptErr *query.ScriptError
	if errors.As(err, &scriptErr) {
		c.logger.Warn("$where evaluation failed", zap.String("operation", op), zap.String("script", scriptErr.Script), zap.Error(scriptErr.Err))
		return
	}
	c.logger.Debug("operation rejected", zap.String("operation", op), zap.String("kind", kind), zap.Error(err))
}

func (c *Collection) recordSlow(op string, start time.Time, filter *document.Document, plan index.Plan, examined, returned int, err error) {
	d := time.Since(start)
	if t := c.db.slowOps.Threshold(); t <= 0 || d < t {
		return
	}
	entry := metrics.SlowOp{
		Duration:   d,
		Operation:  op,
		Collection: c.name,
		Index:      plan.Index,
		Scan:       plan.Scan,
		Examined:   examined,
		Returned:   returned,
	}
	if filter != nil {
		entry.Filter = filter.String()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if c.db.slowOps.Record(entry) {
		c.logger.Warn("slow operation", zap.String("operation", op), zap.Duration("duration", d), zap.String("index", plan.Index), zap.Int("examined", examined), zap.Error(err))
	}
}

func sameKeys(a, b []index.KeyField) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// identical is stricter than compare.Equal: kinds and field order must
// match too, so that $set of 1.0 over int32(1) counts as a modification
func identical(a, b document.Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case document.TypeDocument:
		da, _ := a.Document()
		db, _ := b.Document()
		ka, kb := da.Keys(), db.Keys()
		if len(ka) != len(kb) {
			return false
		}
		for i, k := range ka {
			if kb[i] != k {
				return false
			}
			va, _ := da.Get(k)
			vb, _ := db.Get(k)
			if !identical(va, vb) {
				return false
			}
		}
		return true
	case document.TypeArray:
		aa, _ := a.Array()
		ab, _ := b.Array()
		if len(aa) != len(ab) {
			return false
		}
		for i := range aa {
			if !identical(aa[i], ab[i]) {
				return false
			}
		}
		return true
	}
	return compare.Equal(a, b)
}
