package query

import (
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/geo"
)

const (
	// DefaultMaxOperatorsPerField is how many operators one field may combine
	DefaultMaxOperatorsPerField = 2
	// DefaultNearLimit caps the number of documents a $near query returns
	DefaultNearLimit = 100
)

// ScriptEvaluator runs $where predicates
type ScriptEvaluator interface {
	Evaluate(script string, doc *document.Document) (bool, error)
}

// ScriptValidator is implemented by evaluators that can reject a script at
// compile time
type ScriptValidator interface {
	Validate(script string) error
}

type options struct {
	scripts              ScriptEvaluator
	geometry             geo.Helper
	maxOperatorsPerField int
	strictOperators      bool
	nearLimit            int
}

func defaultOptions() options {
	return options{
		geometry:             geo.DefaultHelper{},
		maxOperatorsPerField: DefaultMaxOperatorsPerField,
		nearLimit:            DefaultNearLimit,
	}
}

// Option configures filter compilation
type Option func(*options)

// WithScriptEvaluator sets the evaluator used by $where. Without one, $where
// fails to compile.
func WithScriptEvaluator(e ScriptEvaluator) Option {
	return func(o *options) { o.scripts = e }
}

// WithGeometryHelper replaces the distance/containment primitives
func WithGeometryHelper(h geo.Helper) Option {
	return func(o *options) {
		if h != nil {
			o.geometry = h
		}
	}
}

// WithMaxOperatorsPerField sets the operator limit per field; n <= 0 removes it
func WithMaxOperatorsPerField(n int) Option {
	return func(o *options) { o.maxOperatorsPerField = n }
}

// WithStrictOperators makes unknown $-operators inside an operator document
// a compilation error instead of being ignored
func WithStrictOperators(strict bool) Option {
	return func(o *options) { o.strictOperators = strict }
}

// WithNearLimit sets how many documents a $near query may return
func WithNearLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nearLimit = n
		}
	}
}
