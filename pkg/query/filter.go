package query

import (
	"strings"

	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/geo"
)

// node is one element of the compiled predicate tree
type node interface {
	match(doc *document.Document) (bool, error)
}

type andNode []node

func (n andNode) match(doc *document.Document) (bool, error) {
	for _, child := range n {
		ok, err := child.match(doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type orNode []node

func (n orNode) match(doc *document.Document) (bool, error) {
	for _, child := range n {
		ok, err := child.match(doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type norNode []node

func (n norNode) match(doc *document.Document) (bool, error) {
	ok, err := orNode(n).match(doc)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type whereNode struct {
	script string
	eval   ScriptEvaluator
}

func (n whereNode) match(doc *document.Document) (bool, error) {
	ok, err := n.eval.Evaluate(n.script, doc)
	if err != nil {
		return false, &ScriptError{Script: n.script, Err: err}
	}
	return ok, nil
}

// fieldNode applies a conjunction of predicates to the values a path
// resolves to
type fieldNode struct {
	path     string
	preds    andPredicate
	equality *document.Value
	near     *nearPredicate
	within   *withinPredicate
}

func (n *fieldNode) match(doc *document.Document) (bool, error) {
	return n.preds.test(doc.Resolve(n.path)), nil
}

// Filter is a compiled query. It is immutable and safe for concurrent use.
type Filter struct {
	root      node
	clauses   []*fieldNode
	near      *fieldNode
	nearLimit int
}

// Compile builds a Filter from a query document. A nil or empty query
// matches every document.
func Compile(query *document.Document, opts ...Option) (*Filter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &compiler{opts: o}
	root, err := c.compileQuery(query, true)
	if err != nil {
		return nil, err
	}
	return &Filter{root: root, clauses: c.clauses, near: c.near, nearLimit: o.nearLimit}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(query *document.Document, opts ...Option) *Filter {
	f, err := Compile(query, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Match evaluates the filter. The only runtime error source is $where.
func (f *Filter) Match(doc *document.Document) (bool, error) {
	return f.root.match(doc)
}

// Matches evaluates the filter, treating a $where failure as no match
func (f *Filter) Matches(doc *document.Document) bool {
	ok, err := f.root.match(doc)
	return err == nil && ok
}

// Fields returns the paths constrained by top-level and $and clauses, in
// query order
func (f *Filter) Fields() []string {
	seen := make(map[string]bool, len(f.clauses))
	fields := make([]string, 0, len(f.clauses))
	for _, c := range f.clauses {
		if !seen[c.path] {
			seen[c.path] = true
			fields = append(fields, c.path)
		}
	}
	return fields
}

// Equality returns the scalar a conjunctive clause requires path to equal.
// Nulls, regexes, documents and arrays are not reported since their matches
// are not limited to equal values.
func (f *Filter) Equality(path string) (document.Value, bool) {
	for _, c := range f.clauses {
		if c.path != path || c.equality == nil {
			continue
		}
		switch c.equality.Type {
		case document.TypeNull, document.TypeRegex, document.TypeDocument,
			document.TypeArray, document.TypeDBRef:
			continue
		}
		return *c.equality, true
	}
	return document.Value{}, false
}

// Restrict keeps only the conjunctive clauses whose path lies within one of
// paths. The result matches every document the full filter matches.
func (f *Filter) Restrict(paths []string) *Filter {
	var kept []*fieldNode
	var near *fieldNode
	for _, c := range f.clauses {
		if !coveredBy(c.path, paths) {
			continue
		}
		kept = append(kept, c)
		if c == f.near {
			near = c
		}
	}
	root := make(andNode, len(kept))
	for i, c := range kept {
		root[i] = c
	}
	return &Filter{root: root, clauses: kept, near: near, nearLimit: f.nearLimit}
}

func coveredBy(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}

// SpatialBounds returns a box containing every location on path that a
// conjunctive $near (with $maxDistance) or $geoWithin clause can match
func (f *Filter) SpatialBounds(path string) (geo.BoundingBox, bool) {
	for _, c := range f.clauses {
		if c.path != path {
			continue
		}
		if c.near != nil {
			if bb, ok := c.near.bounds(); ok {
				return bb, true
			}
		}
		if c.within != nil {
			return c.within.shape.Bounds(), true
		}
	}
	return geo.BoundingBox{}, false
}

// IsNear reports whether the query has a $near or $nearSphere clause
func (f *Filter) IsNear() bool {
	return f.near != nil
}

// NearPath returns the path of the $near clause
func (f *Filter) NearPath() string {
	if f.near == nil {
		return ""
	}
	return f.near.path
}

// Distance returns the distance from the $near center to the closest
// location in doc
func (f *Filter) Distance(doc *document.Document) (float64, bool) {
	if f.near == nil {
		return 0, false
	}
	return f.near.near.distance(doc.Resolve(f.near.path))
}

// NearLimit is the most documents a $near query returns, 0 without $near
func (f *Filter) NearLimit() int {
	if f.near == nil {
		return 0
	}
	return f.nearLimit
}

// ElementMatcher returns a test for single elements of the array at
// arrayPath, built from the clauses the query places on that array and on
// paths below it. ok is false when the query does not constrain the array.
func (f *Filter) ElementMatcher(arrayPath string) (match func(elem document.Value) bool, ok bool) {
	var tests []func(document.Value) bool
	for _, c := range f.clauses {
		switch {
		case c.path == arrayPath:
			for _, p := range c.preds {
				if em, isElemMatch := p.(elemMatchPredicate); isElemMatch {
					tests = append(tests, em.matchElement)
					continue
				}
				tests = append(tests, func(elem document.Value) bool {
					return p.test([]document.Value{elem})
				})
			}
		case strings.HasPrefix(c.path, arrayPath+"."):
			rest := strings.TrimPrefix(c.path, arrayPath+".")
			if _, numeric := document.ArrayIndex(document.SplitPath(rest)[0]); numeric {
				continue
			}
			preds := c.preds
			tests = append(tests, func(elem document.Value) bool {
				var values []document.Value
				if doc, isDoc := elem.Document(); isDoc {
					values = doc.Resolve(rest)
				}
				return preds.test(values)
			})
		}
	}
	if len(tests) == 0 {
		return nil, false
	}
	return func(elem document.Value) bool {
		for _, t := range tests {
			if !t(elem) {
				return false
			}
		}
		return true
	}, true
}

// Seed returns a document built from the literal values the conjunctive
// clauses require. It is the starting point of an upsert insert.
func (f *Filter) Seed() *document.Document {
	seed := document.NewDocument()
	for _, c := range f.clauses {
		if c.equality == nil || c.equality.Type == document.TypeRegex {
			continue
		}
		seed.SetPath(c.path, c.equality.Clone())
	}
	return seed
}
