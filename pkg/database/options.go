package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sjyun/fongo-sub000/pkg/geo"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	scripts    query.ScriptEvaluator
	geometry   geo.Helper
	ids        IDGenerator
	clock      func() time.Time
}

// Option configures the collaborators of a Database
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the database metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithScriptEvaluator replaces the CEL evaluator used by $where
func WithScriptEvaluator(e query.ScriptEvaluator) Option {
	return func(o *options) { o.scripts = e }
}

// WithGeometryHelper replaces the distance and containment primitives
func WithGeometryHelper(h geo.Helper) Option {
	return func(o *options) { o.geometry = h }
}

// WithIDGenerator sets the generator of missing _id values, overriding
// Config.IDGenerator
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the time source of $currentDate
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}
