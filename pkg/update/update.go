// Package update compiles update documents and applies them to documents.
package update

import (
	"strings"
	"time"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

// Operator is an update operator name
type Operator string

const (
	OpSet         Operator = "$set"
	OpUnset       Operator = "$unset"
	OpInc         Operator = "$inc"
	OpMul         Operator = "$mul"
	OpMin         Operator = "$min"
	OpMax         Operator = "$max"
	OpRename      Operator = "$rename"
	OpPush        Operator = "$push"
	OpPushAll     Operator = "$pushAll"
	OpAddToSet    Operator = "$addToSet"
	OpPop         Operator = "$pop"
	OpPull        Operator = "$pull"
	OpPullAll     Operator = "$pullAll"
	OpBit         Operator = "$bit"
	OpSetOnInsert Operator = "$setOnInsert"
	OpCurrentDate Operator = "$currentDate"
)

var operators = map[Operator]bool{
	OpSet: true, OpUnset: true, OpInc: true, OpMul: true, OpMin: true,
	OpMax: true, OpRename: true, OpPush: true, OpPushAll: true,
	OpAddToSet: true, OpPop: true, OpPull: true, OpPullAll: true,
	OpBit: true, OpSetOnInsert: true, OpCurrentDate: true,
}

// noCreate lists the operators that do nothing when their path is missing
var noCreate = map[Operator]bool{
	OpUnset: true, OpPop: true, OpPull: true, OpPullAll: true, OpBit: true,
}

// Update is a compiled update document: either a list of operator
// invocations or a replacement document. It is immutable once compiled.
type Update struct {
	replacement *document.Document
	ops         []*operation
	clock       func() time.Time
}

// Option configures Compile
type Option func(*Update)

// WithClock sets the time source of $currentDate
func WithClock(now func() time.Time) Option {
	return func(u *Update) {
		if now != nil {
			u.clock = now
		}
	}
}

// Compile validates an update document. A document without $-prefixed keys
// is a replacement; otherwise every top-level key must be an operator.
// Argument errors and path conflicts are reported here, before any document
// is touched.
func Compile(spec *document.Document, opts ...Option) (*Update, error) {
	u := &Update{clock: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	if spec == nil {
		spec = document.NewDocument()
	}

	keys := spec.Keys()
	usesOperators := false
	for _, k := range keys {
		if strings.HasPrefix(k, "$") {
			usesOperators = true
			break
		}
	}
	if !usesOperators {
		u.replacement = spec.Clone()
		return u, nil
	}

	for _, k := range keys {
		op := Operator(k)
		if !operators[op] {
			return nil, &UnsupportedOperatorError{Operator: k}
		}
		arg, _ := spec.Get(k)
		fields, ok := arg.Document()
		if !ok {
			return nil, typeErr(op, "", arg.Type, "argument must be a document")
		}
		for _, path := range fields.Keys() {
			v, _ := fields.Get(path)
			o, err := compileOperation(op, path, v)
			if err != nil {
				return nil, err
			}
			u.ops = append(u.ops, o)
		}
	}
	if err := checkConflicts(u.ops); err != nil {
		return nil, err
	}
	return u, nil
}

// IsReplacement reports whether the update replaces whole documents
func (u *Update) IsReplacement() bool {
	return u.replacement != nil
}

// Apply returns the result of applying the update to a copy of doc; doc itself
// is never modified, so a failed update leaves nothing half-applied. q is the
// filter that selected doc and resolves positional ($) paths; it may be nil.
// isUpsert enables $setOnInsert and must only be set when the write inserts.
func (u *Update) Apply(doc *document.Document, q *query.Filter, isUpsert bool) (*document.Document, error) {
	if u.replacement != nil {
		return u.replace(doc)
	}
	out := doc.Clone()
	a := &applier{query: q, now: u.clock()}
	for _, o := range u.ops {
		if o.op == OpSetOnInsert && !isUpsert {
			continue
		}
		if err := a.apply(out, o); err != nil {
			return nil, err
		}
	}
	if err := checkID(doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply compiles spec and applies it to doc
func Apply(doc, spec *document.Document, q *query.Filter, isUpsert bool, opts ...Option) (*document.Document, error) {
	u, err := Compile(spec, opts...)
	if err != nil {
		return nil, err
	}
	return u.Apply(doc, q, isUpsert)
}

func (u *Update) replace(doc *document.Document) (*document.Document, error) {
	out := u.replacement.Clone()
	id, hasID := doc.ID()
	newID, hasNewID := out.ID()
	switch {
	case hasID && hasNewID && !compare.Equal(id, newID):
		return nil, typeErr("replacement", document.IDField, newID.Type, "the _id field cannot be changed")
	case hasID:
		out.SetFirst(document.IDField, id.Clone())
	case hasNewID:
		out.SetFirst(document.IDField, newID)
	}
	return out, nil
}

// checkID rejects updates that changed or removed a stored _id
func checkID(before, after *document.Document) error {
	id, ok := before.ID()
	if !ok {
		return nil
	}
	newID, ok := after.ID()
	if !ok {
		return typeErr("update", document.IDField, 0, "the _id field cannot be removed")
	}
	if !compare.Equal(id, newID) {
		return typeErr("update", document.IDField, newID.Type, "the _id field cannot be changed")
	}
	return nil
}

// checkConflicts rejects two targets where one path equals or contains the
// other
func checkConflicts(ops []*operation) error {
	var seen []string
	for _, o := range ops {
		for _, p := range o.targets() {
			for _, s := range seen {
				if overlaps(p, s) {
					return &ConflictError{Path: p, Other: s}
				}
			}
			seen = append(seen, p)
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
