// Package compare defines the total order over document values.
//
// Kinds are ranked by a fixed weight table:
//
//	MinKey < Null < numbers < String < Document < Array < Binary <
//	ObjectID < Boolean < Date < Regex < MaxKey
//
// Numbers of different kinds compare by exact numeric value, DBRefs compare
// as their {$ref, $id, $db} document form.
package compare

import (
	"bytes"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// Weight returns the rank of a kind in the cross-kind order. ok is false for
// a type outside the value union.
func Weight(t document.Type) (int, bool) {
	switch t {
	case document.TypeMinKey:
		return 0, true
	case document.TypeNull:
		return 1, true
	case document.TypeInt32, document.TypeInt64, document.TypeFloat64:
		return 2, true
	case document.TypeString:
		return 3, true
	case document.TypeDocument, document.TypeDBRef:
		return 4, true
	case document.TypeArray:
		return 5, true
	case document.TypeBinary:
		return 6, true
	case document.TypeObjectID:
		return 7, true
	case document.TypeBoolean:
		return 8, true
	case document.TypeDateTime:
		return 9, true
	case document.TypeRegex:
		return 10, true
	case document.TypeMaxKey:
		return 11, true
	}
	return 0, false
}

// SameClass reports whether two values share a kind class, so that range
// operators consider them comparable. MinKey and MaxKey share every class.
func SameClass(a, b document.Value) bool {
	if isBound(a) || isBound(b) {
		return true
	}
	wa, okA := Weight(a.Type)
	wb, okB := Weight(b.Type)
	return okA && okB && wa == wb
}

func isBound(v document.Value) bool {
	return v.Type == document.TypeMinKey || v.Type == document.TypeMaxKey
}

// Compare returns -1, 0 or 1. It panics with *InternalError when a value
// carries a type outside the value union; use Order to get the error instead.
func Compare(a, b document.Value) int {
	wa, okA := Weight(a.Type)
	wb, okB := Weight(b.Type)
	if !okA || !okB {
		panic(&InternalError{Left: a.Type, Right: b.Type})
	}
	if wa != wb {
		return sign(wa - wb)
	}

	switch a.Type {
	case document.TypeMinKey, document.TypeNull, document.TypeMaxKey:
		return 0
	case document.TypeInt32, document.TypeInt64, document.TypeFloat64:
		return compareNumbers(a, b)
	case document.TypeString:
		return strings.Compare(a.Data.(string), b.Data.(string))
	case document.TypeDocument, document.TypeDBRef:
		return compareDocuments(asDocument(a), asDocument(b))
	case document.TypeArray:
		arrA, _ := a.Array()
		arrB, _ := b.Array()
		return compareArrays(arrA, arrB)
	case document.TypeBinary:
		binA := a.Data.([]byte)
		binB := b.Data.([]byte)
		if len(binA) != len(binB) {
			return sign(len(binA) - len(binB))
		}
		return bytes.Compare(binA, binB)
	case document.TypeObjectID:
		return a.Data.(document.ObjectID).Compare(b.Data.(document.ObjectID))
	case document.TypeBoolean:
		ba, bb := a.Data.(bool), b.Data.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case document.TypeDateTime:
		return compareTimes(a.Data.(time.Time), b.Data.(time.Time))
	case document.TypeRegex:
		ra, rb := a.Data.(document.Regex), b.Data.(document.Regex)
		if c := strings.Compare(ra.Pattern, rb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(ra.Options, rb.Options)
	}
	panic(&InternalError{Left: a.Type, Right: b.Type})
}

// Order is Compare with the invariant violation reported as an error
func Order(a, b document.Value) (result int, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			err = ie
		}
	}()
	return Compare(a, b), nil
}

// Equal reports deep structural equality under the comparator
func Equal(a, b document.Value) bool {
	return Compare(a, b) == 0
}

// Less reports whether a sorts before b
func Less(a, b document.Value) bool {
	return Compare(a, b) < 0
}

// Documents compares two documents field by field
func Documents(a, b *document.Document) int {
	return compareDocuments(a, b)
}

func asDocument(v document.Value) *document.Document {
	if ref, ok := v.DBRef(); ok {
		return ref.Document()
	}
	d, _ := v.Document()
	return d
}

// compareDocuments walks both documents in iteration order: the first
// differing key name or value decides, and a document that runs out of keys
// first is the smaller one.
func compareDocuments(a, b *document.Document) int {
	keysA, keysB := a.Keys(), b.Keys()
	for i := 0; i < len(keysA) && i < len(keysB); i++ {
		if c := strings.Compare(keysA[i], keysB[i]); c != 0 {
			return c
		}
		va, _ := a.Get(keysA[i])
		vb, _ := b.Get(keysB[i])
		if c := Compare(va, vb); c != 0 {
			return c
		}
	}
	return sign(len(keysA) - len(keysB))
}

// compareArrays compares element-wise. On a length mismatch the shorter array
// is smaller, unless the first surplus element of the longer one is MinKey, in
// which case the longer array is smaller.
func compareArrays(a, b []document.Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) > len(b):
		if a[len(b)].Type == document.TypeMinKey {
			return -1
		}
		return 1
	default:
		if b[len(a)].Type == document.TypeMinKey {
			return 1
		}
		return -1
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareNumbers compares across int32, int64 and double without losing
// precision: mixed integer/double pairs are promoted to big.Float. NaN sorts
// below every other number and equals itself.
func compareNumbers(a, b document.Value) int {
	ia, aInt := integral(a)
	ib, bInt := integral(b)
	if aInt && bInt {
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	}

	fa, _ := a.Float64Value()
	fb, _ := b.Float64Value()
	nanA, nanB := math.IsNaN(fa) && !aInt, math.IsNaN(fb) && !bInt
	switch {
	case nanA && nanB:
		return 0
	case nanA:
		return -1
	case nanB:
		return 1
	}
	if !aInt && !bInt {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}

	return bigFloat(a).Cmp(bigFloat(b))
}

func integral(v document.Value) (int64, bool) {
	switch n := v.Data.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func bigFloat(v document.Value) *big.Float {
	if i, ok := integral(v); ok {
		return new(big.Float).SetInt64(i)
	}
	f, _ := v.Float64Value()
	return new(big.Float).SetFloat64(f)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
