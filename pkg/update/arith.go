package update

import (
	"errors"
	"math"
	"sort"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
)

var errOverflow = errors.New("integer overflow")

// arithmetic adds or multiplies two numbers in the widest kind of the pair.
// Int32 results that overflow widen to int64; int64 overflow is an error.
func arithmetic(op Operator, a, b document.Value) (document.Value, error) {
	if a.Type == document.TypeFloat64 || b.Type == document.TypeFloat64 {
		x, _ := a.Float64Value()
		y, _ := b.Float64Value()
		if op == OpMul {
			return document.Float64(x * y), nil
		}
		return document.Float64(x + y), nil
	}

	x, _ := a.Int64Value()
	y, _ := b.Int64Value()
	var r int64
	if op == OpMul {
		if x != 0 && y != 0 {
			r = x * y
			if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
				return document.Value{}, errOverflow
			}
		}
	} else {
		r = x + y
		if (y > 0 && r < x) || (y < 0 && r > x) {
			return document.Value{}, errOverflow
		}
	}

	if a.Type == document.TypeInt32 && b.Type == document.TypeInt32 && r >= math.MinInt32 && r <= math.MaxInt32 {
		return document.Int32(int32(r)), nil
	}
	return document.Int64(r), nil
}

// zeroOf is the result of $mul on a missing field: zero of the operand's kind
func zeroOf(v document.Value) document.Value {
	switch v.Type {
	case document.TypeInt32:
		return document.Int32(0)
	case document.TypeInt64:
		return document.Int64(0)
	}
	return document.Float64(0)
}

// bitwise applies and/or/xor, widening to int64 when either side is int64
func bitwise(name string, a, b document.Value) document.Value {
	x, _ := a.Int64Value()
	y, _ := b.Int64Value()
	var r int64
	switch name {
	case "and":
		r = x & y
	case "or":
		r = x | y
	case "xor":
		r = x ^ y
	}
	if a.Type == document.TypeInt32 && b.Type == document.TypeInt32 {
		return document.Int32(int32(r))
	}
	return document.Int64(r)
}

// apply inserts the values at $position, then sorts, then slices. $addToSet
// skips values already present.
func (p *pushSpec) apply(arr []document.Value) []document.Value {
	values := make([]document.Value, 0, len(p.each))
	for _, v := range p.each {
		if p.unique && (contains(arr, v) || contains(values, v)) {
			continue
		}
		values = append(values, v.Clone())
	}

	pos := len(arr)
	if p.position != nil {
		pos = *p.position
		if pos < 0 {
			pos = max(len(arr)+pos, 0)
		}
		pos = min(pos, len(arr))
	}
	out := make([]document.Value, 0, len(arr)+len(values))
	out = append(out, arr[:pos]...)
	out = append(out, values...)
	out = append(out, arr[pos:]...)

	switch {
	case p.sortBy != nil:
		sort.SliceStable(out, func(i, j int) bool {
			return p.sortBy(asDocument(out[i]), asDocument(out[j])) < 0
		})
	case p.sortDir != 0:
		sort.SliceStable(out, func(i, j int) bool {
			return compare.Compare(out[i], out[j])*p.sortDir < 0
		})
	}

	if p.slice != nil {
		n := *p.slice
		switch {
		case n >= 0 && n < len(out):
			out = out[:n]
		case n < 0 && -n < len(out):
			out = out[len(out)+n:]
		}
	}
	return out
}

func contains(arr []document.Value, v document.Value) bool {
	for _, elem := range arr {
		if compare.Equal(elem, v) {
			return true
		}
	}
	return false
}

// asDocument lets $sort by field order non-document elements as if every
// field were missing
func asDocument(v document.Value) *document.Document {
	if d, ok := v.Document(); ok {
		return d
	}
	return document.NewDocument()
}
