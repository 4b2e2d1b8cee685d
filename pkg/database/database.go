// Package database is the collection orchestrator: it owns the document
// store of each collection, keeps every index consistent with it and runs
// reads and writes through the filter and update engines.
package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjyun/fongo-sub000/pkg/geo"
	"github.com/sjyun/fongo-sub000/pkg/logger"
	"github.com/sjyun/fongo-sub000/pkg/metrics"
	"github.com/sjyun/fongo-sub000/pkg/query"
	"github.com/sjyun/fongo-sub000/pkg/script"
)

// Database represents a database instance
type Database struct {
	config      *Config
	opts        options
	logger      *zap.Logger
	metrics     *metrics.Collector
	slowOps     *metrics.SlowOpLog
	collections map[string]*Collection
	mu          sync.RWMutex
	isOpen      bool
}

// Open creates an empty in-memory database. A nil config uses DefaultConfig.
func Open(config *Config, opts ...Option) (*Database, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := *config

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		if cfg.LogLevel != "" {
			o.logger = logger.New(logger.LogLevel(cfg.LogLevel), logger.LogFormat(cfg.LogFormat))
		} else {
			o.logger = zap.NewNop()
		}
	}
	if o.scripts == nil {
		cel, err := script.NewCELEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create script evaluator: %w", err)
		}
		o.scripts = cel
	}
	if o.geometry == nil {
		o.geometry = geo.DefaultHelper{}
	}
	if o.ids == nil {
		o.ids = generatorByName(cfg.IDGenerator)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	db := &Database{
		config:      &cfg,
		opts:        o,
		logger:      o.logger.Named("database"),
		metrics:     metrics.NewCollector(o.registerer),
		slowOps:     metrics.NewSlowOpLog(cfg.SlowOpThreshold, cfg.SlowOpEntries),
		collections: make(map[string]*Collection),
		isOpen:      true,
	}
	return db, nil
}

// Collection returns a collection, creating it if it doesn't exist. On a
// closed database the returned collection fails every operation.
func (db *Database) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()

	if coll, exists := db.collections[name]; exists {
		return coll
	}
	coll := newCollection(db, name)
	if !db.isOpen {
		coll.gone = ErrDatabaseClosed
		return coll
	}
	db.collections[name] = coll
	db.logger.Info("collection created", zap.String("collection", name))
	return coll
}

// CreateCollection explicitly creates a collection
func (db *Database) CreateCollection(name string) (*Collection, error) {
	if name == "" || strings.Contains(name, "$") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return nil, ErrDatabaseClosed
	}
	if _, exists := db.collections[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	coll := newCollection(db, name)
	db.collections[name] = coll
	db.logger.Info("collection created", zap.String("collection", name))
	return coll, nil
}

// DropCollection drops a collection. Handles to it fail afterwards.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return ErrDatabaseClosed
	}
	coll, exists := db.collections[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	delete(db.collections, name)
	coll.drop(fmt.Errorf("%w: %s", ErrCollectionNotFound, name))
	db.metrics.ForgetCollection(name)
	db.logger.Info("collection dropped", zap.String("collection", name))
	return nil
}

// ListCollections returns all collection names in sorted order
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlowOps returns the log of slow operations
func (db *Database) SlowOps() *metrics.SlowOpLog {
	return db.slowOps
}

// Config returns a copy of the configuration
func (db *Database) Config() Config {
	return *db.config
}

// Close releases every collection. Operations on a closed database fail
// with ErrDatabaseClosed.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return nil
	}
	for name, coll := range db.collections {
		coll.drop(ErrDatabaseClosed)
		delete(db.collections, name)
	}
	db.isOpen = false
	_ = db.logger.Sync()
	return nil
}

// Stats returns database statistics
func (db *Database) Stats() map[string]interface{} {
	db.mu.RLock()
	colls := make([]*Collection, 0, len(db.collections))
	for _, coll := range db.collections {
		colls = append(colls, coll)
	}
	db.mu.RUnlock()

	collectionStats := make(map[string]interface{}, len(colls))
	documents := 0
	for _, coll := range colls {
		s := coll.Stats()
		documents += s.Count
		collectionStats[coll.Name()] = s
	}
	return map[string]interface{}{
		"collections":      len(colls),
		"documents":        documents,
		"collection_stats": collectionStats,
		"slow_operations":  len(db.slowOps.Entries()),
	}
}

// queryOptions are the filter compilation options derived from the config
func (db *Database) queryOptions() []query.Option {
	return []query.Option{
		query.WithScriptEvaluator(db.opts.scripts),
		query.WithGeometryHelper(db.opts.geometry),
		query.WithMaxOperatorsPerField(db.config.MaxOperatorsPerField),
		query.WithStrictOperators(db.config.StrictOperators),
		query.WithNearLimit(db.config.NearLimit),
	}
}
