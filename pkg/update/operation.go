package update

import (
	"fmt"
	"math"
	"strings"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

// operation is one field of one operator, e.g. the "a.b" of {$inc: {"a.b": 1}}
type operation struct {
	op   Operator
	path string
	segs []string
	arg  document.Value

	to        []string // $rename destination
	push      *pushSpec
	pull      func(document.Value) bool
	bits      []bitOp
	timestamp bool
}

type bitOp struct {
	name    string
	operand document.Value
}

// pushSpec holds the values and modifiers of $push, $pushAll and $addToSet
type pushSpec struct {
	each     []document.Value
	position *int
	sortDir  int
	sortBy   compare.DocumentComparator
	slice    *int
	unique   bool
}

func (o *operation) targets() []string {
	if o.op == OpRename {
		return []string{o.path, strings.Join(o.to, ".")}
	}
	return []string{o.path}
}

func compileOperation(op Operator, path string, arg document.Value) (*operation, error) {
	segs, err := parsePath(op, path)
	if err != nil {
		return nil, err
	}
	o := &operation{op: op, path: path, segs: segs, arg: arg}

	switch op {
	case OpInc, OpMul:
		if !arg.IsNumber() {
			return nil, typeErr(op, path, arg.Type, "argument must be a number")
		}

	case OpRename:
		to, ok := arg.StringValue()
		if !ok {
			return nil, typeErr(op, path, arg.Type, "destination must be a string")
		}
		if strings.Contains(path, "$") || strings.Contains(to, "$") {
			return nil, typeErr(op, path, 0, "positional paths cannot be renamed")
		}
		if o.to, err = parsePath(op, to); err != nil {
			return nil, err
		}
		if overlaps(path, to) {
			return nil, &ConflictError{Path: path, Other: to}
		}

	case OpPush, OpAddToSet:
		if o.push, err = compilePush(op, path, arg); err != nil {
			return nil, err
		}

	case OpPushAll:
		items, ok := arg.Array()
		if !ok {
			return nil, typeErr(op, path, arg.Type, "argument must be an array")
		}
		o.push = &pushSpec{each: items}

	case OpPop:
		if !arg.IsNumber() {
			return nil, typeErr(op, path, arg.Type, "argument must be 1 or -1")
		}

	case OpPull:
		if o.pull, err = compilePull(path, arg); err != nil {
			return nil, err
		}

	case OpPullAll:
		items, ok := arg.Array()
		if !ok {
			return nil, typeErr(op, path, arg.Type, "argument must be an array")
		}
		o.pull = func(v document.Value) bool {
			for _, item := range items {
				if compare.Equal(v, item) {
					return true
				}
			}
			return false
		}

	case OpBit:
		if o.bits, err = compileBits(path, arg); err != nil {
			return nil, err
		}

	case OpCurrentDate:
		if o.timestamp, err = compileCurrentDate(path, arg); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// parsePath splits a target path. A positional segment may appear once and
// never first.
func parsePath(op Operator, path string) ([]string, error) {
	segs := document.SplitPath(path)
	positional := 0
	for i, s := range segs {
		if s == "" {
			return nil, typeErr(op, path, 0, "empty field name in path")
		}
		if s == "$" {
			positional++
			if i == 0 {
				return nil, typeErr(op, path, 0, "positional operator cannot be the first segment")
			}
		} else if strings.HasPrefix(s, "$") {
			return nil, typeErr(op, path, 0, "field names cannot start with $")
		}
	}
	if positional > 1 {
		return nil, typeErr(op, path, 0, "only one positional operator is allowed")
	}
	return segs, nil
}

func compilePush(op Operator, path string, arg document.Value) (*pushSpec, error) {
	p := &pushSpec{unique: op == OpAddToSet}
	mods, isDoc := arg.Document()
	if !isDoc || !mods.Has("$each") {
		if isDoc {
			for _, k := range mods.Keys() {
				if strings.HasPrefix(k, "$") {
					return nil, typeErr(op, path, 0, "modifier %s requires $each", k)
				}
			}
		}
		p.each = []document.Value{arg}
		return p, nil
	}

	for _, k := range mods.Keys() {
		v, _ := mods.Get(k)
		switch {
		case k == "$each":
			items, ok := v.Array()
			if !ok {
				return nil, typeErr(op, path, v.Type, "$each must be an array")
			}
			p.each = items
		case op == OpAddToSet:
			return nil, typeErr(op, path, 0, "unsupported modifier %s", k)
		case k == "$position":
			n, err := wholeNumber(op, path, k, v)
			if err != nil {
				return nil, err
			}
			p.position = &n
		case k == "$slice":
			n, err := wholeNumber(op, path, k, v)
			if err != nil {
				return nil, err
			}
			p.slice = &n
		case k == "$sort":
			if spec, ok := v.Document(); ok {
				cmp, err := compare.SortSpec(spec)
				if err != nil {
					return nil, typeErr(op, path, 0, "$sort: %v", err)
				}
				p.sortBy = cmp
				continue
			}
			f, ok := v.Float64Value()
			if !ok || (f != 1 && f != -1) {
				return nil, typeErr(op, path, v.Type, "$sort must be 1, -1 or a sort document")
			}
			p.sortDir = int(f)
		default:
			return nil, typeErr(op, path, 0, "unsupported modifier %s", k)
		}
	}
	return p, nil
}

func wholeNumber(op Operator, path, modifier string, v document.Value) (int, error) {
	f, ok := v.Float64Value()
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, typeErr(op, path, v.Type, "%s must be a whole number", modifier)
	}
	return int(f), nil
}

// compilePull builds the element test of $pull: a plain value removes equal
// elements, an operator document is applied to each element, and any other
// document is a query over document elements.
func compilePull(path string, arg document.Value) (func(document.Value) bool, error) {
	cond, isDoc := arg.Document()
	if !isDoc && arg.Type != document.TypeRegex {
		return func(v document.Value) bool { return compare.Equal(v, arg) }, nil
	}

	if !isDoc || isOperatorDocument(cond) {
		f, err := query.Compile(document.D{{Key: "v", Value: arg}}.Document())
		if err != nil {
			return nil, fmt.Errorf("update: $pull on %q: %w", path, err)
		}
		return func(v document.Value) bool {
			return f.Matches(document.D{{Key: "v", Value: v}}.Document())
		}, nil
	}

	f, err := query.Compile(cond)
	if err != nil {
		return nil, fmt.Errorf("update: $pull on %q: %w", path, err)
	}
	return func(v document.Value) bool {
		doc, ok := v.Document()
		return ok && f.Matches(doc)
	}, nil
}

func isOperatorDocument(d *document.Document) bool {
	for _, k := range d.Keys() {
		if query.IsFieldOperator(k) {
			return true
		}
	}
	return false
}

func compileBits(path string, arg document.Value) ([]bitOp, error) {
	spec, ok := arg.Document()
	if !ok || spec.Len() == 0 {
		return nil, typeErr(OpBit, path, arg.Type, "argument must be a document of and/or/xor")
	}
	ops := make([]bitOp, 0, spec.Len())
	for _, k := range spec.Keys() {
		v, _ := spec.Get(k)
		switch k {
		case "and", "or", "xor":
		default:
			return nil, typeErr(OpBit, path, 0, "unknown bitwise operation %q", k)
		}
		if v.Type != document.TypeInt32 && v.Type != document.TypeInt64 {
			return nil, typeErr(OpBit, path, v.Type, "%s operand must be an integer", k)
		}
		ops = append(ops, bitOp{name: k, operand: v})
	}
	return ops, nil
}

// compileCurrentDate returns true when a timestamp rather than a date is
// requested
func compileCurrentDate(path string, arg document.Value) (bool, error) {
	if arg.Type == document.TypeBoolean {
		return false, nil
	}
	spec, ok := arg.Document()
	if !ok {
		return false, typeErr(OpCurrentDate, path, arg.Type, "argument must be true or {$type: ...}")
	}
	t, _ := spec.Get("$type")
	switch s, _ := t.StringValue(); s {
	case "date":
		return false, nil
	case "timestamp":
		return true, nil
	}
	return false, typeErr(OpCurrentDate, path, t.Type, "$type must be \"date\" or \"timestamp\"")
}
