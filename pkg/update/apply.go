package update

import (
	"strings"
	"time"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/query"
)

// applier holds the context shared by the operations of one Apply call
type applier struct {
	query *query.Filter
	now   time.Time
}

// leaf is what an operator does with the value at the end of its path
type leaf func(cur document.Value, exists bool) (result, error)

type result struct {
	value  document.Value
	remove bool
	skip   bool
}

func set(v document.Value) (result, error) { return result{value: v}, nil }

func unchanged() (result, error) { return result{skip: true}, nil }

// walk describes one traversal of a target path
type walk struct {
	op     Operator
	path   string
	segs   []string
	create bool
	// noArrays rejects paths that pass through an array ($rename)
	noArrays bool
}

func (a *applier) apply(doc *document.Document, o *operation) error {
	w := &walk{op: o.op, path: o.path, segs: o.segs, create: !noCreate[o.op]}

	switch o.op {
	case OpRename:
		return a.rename(doc, o)
	case OpSet, OpSetOnInsert:
		return a.walkDoc(doc, w, 0, func(document.Value, bool) (result, error) {
			return set(o.arg.Clone())
		})
	case OpUnset:
		return a.walkDoc(doc, w, 0, func(_ document.Value, exists bool) (result, error) {
			if !exists {
				return unchanged()
			}
			return result{remove: true}, nil
		})
	case OpInc, OpMul:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			if !exists {
				if o.op == OpMul {
					return set(zeroOf(o.arg))
				}
				return set(o.arg)
			}
			if !cur.IsNumber() {
				return result{}, typeErr(o.op, o.path, cur.Type, "cannot apply to a non-numeric value")
			}
			v, err := arithmetic(o.op, cur, o.arg)
			if err != nil {
				return result{}, typeErr(o.op, o.path, cur.Type, "%v", err)
			}
			return set(v)
		})
	case OpMin, OpMax:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			if !exists {
				return set(o.arg.Clone())
			}
			c := compare.Compare(o.arg, cur)
			if (o.op == OpMin && c < 0) || (o.op == OpMax && c > 0) {
				return set(o.arg.Clone())
			}
			return unchanged()
		})
	case OpCurrentDate:
		now := document.NewValue(a.now)
		if o.timestamp {
			now = document.Int64(a.now.Unix())
		}
		return a.walkDoc(doc, w, 0, func(document.Value, bool) (result, error) {
			return set(now)
		})
	case OpPush, OpPushAll, OpAddToSet:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			var arr []document.Value
			if exists {
				var ok bool
				if arr, ok = cur.Array(); !ok {
					return result{}, typeErr(o.op, o.path, cur.Type, "the field must be an array")
				}
			}
			return set(document.Array(o.push.apply(arr)...))
		})
	case OpPop:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			if !exists {
				return unchanged()
			}
			arr, ok := cur.Array()
			if !ok {
				return result{}, typeErr(o.op, o.path, cur.Type, "the field must be an array")
			}
			if len(arr) == 0 {
				return unchanged()
			}
			if f, _ := o.arg.Float64Value(); f < 0 {
				return set(document.Array(arr[1:]...))
			}
			return set(document.Array(arr[:len(arr)-1]...))
		})
	case OpPull, OpPullAll:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			if !exists {
				return unchanged()
			}
			arr, ok := cur.Array()
			if !ok {
				return result{}, typeErr(o.op, o.path, cur.Type, "the field must be an array")
			}
			kept := make([]document.Value, 0, len(arr))
			for _, elem := range arr {
				if !o.pull(elem) {
					kept = append(kept, elem)
				}
			}
			return set(document.Array(kept...))
		})
	case OpBit:
		return a.walkDoc(doc, w, 0, func(cur document.Value, exists bool) (result, error) {
			if !exists {
				return unchanged()
			}
			if cur.Type != document.TypeInt32 && cur.Type != document.TypeInt64 {
				return result{}, typeErr(o.op, o.path, cur.Type, "cannot apply to a non-integer value")
			}
			v := cur
			for _, b := range o.bits {
				v = bitwise(b.name, v, b.operand)
			}
			return set(v)
		})
	}
	return &UnsupportedOperatorError{Operator: string(o.op)}
}

func (a *applier) rename(doc *document.Document, o *operation) error {
	var moved document.Value
	found := false
	from := &walk{op: o.op, path: o.path, segs: o.segs, noArrays: true}
	err := a.walkDoc(doc, from, 0, func(cur document.Value, exists bool) (result, error) {
		if !exists {
			return unchanged()
		}
		moved, found = cur, true
		return result{remove: true}, nil
	})
	if err != nil || !found {
		return err
	}
	to := &walk{op: o.op, path: strings.Join(o.to, "."), segs: o.to, create: true, noArrays: true}
	return a.walkDoc(doc, to, 0, func(document.Value, bool) (result, error) {
		return set(moved)
	})
}

// walkDoc applies fn at w.segs[i:] below doc, mutating doc in place
func (a *applier) walkDoc(doc *document.Document, w *walk, i int, fn leaf) error {
	seg := w.segs[i]
	if seg == "$" {
		return typeErr(w.op, w.path, document.TypeDocument, "the positional operator requires an array")
	}
	cur, exists := doc.Get(seg)

	if i == len(w.segs)-1 {
		r, err := fn(cur, exists)
		if err != nil {
			return err
		}
		switch {
		case r.skip:
		case r.remove:
			doc.Delete(seg)
		default:
			doc.Set(seg, r.value)
		}
		return nil
	}

	if !exists {
		if !w.create {
			return nil
		}
		child := document.NewDocument()
		if err := a.walkDoc(child, w, i+1, fn); err != nil {
			return err
		}
		if child.Len() > 0 {
			doc.Set(seg, child)
		}
		return nil
	}

	next, err := a.walkValue(cur, w, i+1, fn)
	if err != nil {
		return err
	}
	doc.Set(seg, next)
	return nil
}

// walkValue applies fn at w.segs[i:] below v and returns the value that
// replaces v. Arrays are copied before they are changed.
func (a *applier) walkValue(v document.Value, w *walk, i int, fn leaf) (document.Value, error) {
	switch v.Type {
	case document.TypeDocument:
		doc, _ := v.Document()
		return v, a.walkDoc(doc, w, i, fn)

	case document.TypeArray:
		if w.noArrays {
			return v, typeErr(w.op, w.path, v.Type, "the path cannot pass through an array")
		}
		arr, _ := v.Array()
		if _, numeric := document.ArrayIndex(w.segs[i]); !w.create && !numeric && w.segs[i] != "$" {
			// a field of an array holds nothing to remove or change
			return v, nil
		}
		idx, err := a.index(w, i, arr)
		if err != nil {
			return v, err
		}
		if idx >= len(arr) && !w.create {
			return v, nil
		}
		out := make([]document.Value, max(len(arr), idx+1))
		copy(out, arr)
		for j := len(arr); j < len(out); j++ {
			out[j] = document.Null()
		}
		elem, exists := out[idx], idx < len(arr)

		if i == len(w.segs)-1 {
			r, err := fn(elem, exists)
			if err != nil {
				return v, err
			}
			switch {
			case r.skip:
				return v, nil
			case r.remove:
				out[idx] = document.Null()
			default:
				out[idx] = r.value
			}
			return document.Array(out...), nil
		}

		if !exists {
			elem = document.Doc(document.NewDocument())
		}
		next, err := a.walkValue(elem, w, i+1, fn)
		if err != nil {
			return v, err
		}
		out[idx] = next
		return document.Array(out...), nil
	}

	if !w.create {
		return v, nil
	}
	return v, typeErr(w.op, w.path, v.Type, "cannot create field %q in a %s value", w.segs[i], v.Type)
}

// index resolves the array segment at w.segs[i]: a number, or the positional
// $ which picks the first element the query matched
func (a *applier) index(w *walk, i int, arr []document.Value) (int, error) {
	seg := w.segs[i]
	if seg != "$" {
		idx, ok := document.ArrayIndex(seg)
		if !ok {
			return 0, typeErr(w.op, w.path, document.TypeArray, "cannot create field %q in an array element", seg)
		}
		return idx, nil
	}
	if a.query != nil {
		if match, ok := a.query.ElementMatcher(strings.Join(w.segs[:i], ".")); ok {
			for j, elem := range arr {
				if match(elem) {
					return j, nil
				}
			}
		}
	}
	return 0, typeErr(w.op, w.path, document.TypeArray, "the positional operator did not find the match needed from the query")
}
