package query

import (
	"regexp"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/geo"
)

// Operator represents a query operator
type Operator string

const (
	// Comparison operators
	OpEqual              Operator = "$eq"
	OpNotEqual           Operator = "$ne"
	OpGreaterThan        Operator = "$gt"
	OpGreaterThanOrEqual Operator = "$gte"
	OpLessThan           Operator = "$lt"
	OpLessThanOrEqual    Operator = "$lte"
	OpIn                 Operator = "$in"
	OpNotIn              Operator = "$nin"

	// Logical operators
	OpAnd     Operator = "$and"
	OpOr      Operator = "$or"
	OpNor     Operator = "$nor"
	OpNot     Operator = "$not"
	OpWhere   Operator = "$where"
	OpComment Operator = "$comment"

	// Element operators
	OpExists Operator = "$exists"
	OpType   Operator = "$type"

	// Evaluation operators
	OpRegex   Operator = "$regex"
	OpOptions Operator = "$options"
	OpMod     Operator = "$mod"

	// Array operators
	OpAll       Operator = "$all"
	OpElemMatch Operator = "$elemMatch"
	OpSize      Operator = "$size"

	// Geospatial operators
	OpNear        Operator = "$near"
	OpNearSphere  Operator = "$nearSphere"
	OpGeoWithin   Operator = "$geoWithin"
	OpWithin      Operator = "$within"
	OpMaxDistance Operator = "$maxDistance"
	OpMinDistance Operator = "$minDistance"
	OpGeometry    Operator = "$geometry"
)

// fieldOperators are the operators recognized inside an operator document.
// Each one counts toward the per-field operator limit.
var fieldOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpGreaterThan: true, OpGreaterThanOrEqual: true,
	OpLessThan: true, OpLessThanOrEqual: true,
	OpIn: true, OpNotIn: true, OpAll: true,
	OpExists: true, OpMod: true, OpSize: true,
	OpElemMatch: true, OpRegex: true, OpType: true, OpNot: true,
	OpNear: true, OpNearSphere: true, OpGeoWithin: true, OpWithin: true,
}

// modifiers qualify a sibling operator and do not count on their own
var modifiers = map[Operator]bool{
	OpOptions: true, OpMaxDistance: true, OpMinDistance: true,
}

// IsFieldOperator reports whether name is an operator usable on a field
func IsFieldOperator(name string) bool {
	return fieldOperators[Operator(name)]
}

// predicate tests the values a field path resolved to. An empty slice means
// the path is missing.
type predicate interface {
	test(values []document.Value) bool
}

// expand returns each value followed by its elements when it is an array
func expand(values []document.Value) []document.Value {
	out := make([]document.Value, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if arr, ok := v.Array(); ok {
			out = append(out, arr...)
		}
	}
	return out
}

type andPredicate []predicate

func (a andPredicate) test(values []document.Value) bool {
	for _, p := range a {
		if !p.test(values) {
			return false
		}
	}
	return true
}

type notPredicate struct {
	inner predicate
}

func (n notPredicate) test(values []document.Value) bool {
	return !n.inner.test(values)
}

// equalPredicate matches a value equal to the operand or an array holding it.
// A null operand also matches a missing field.
type equalPredicate struct {
	operand document.Value
}

func (p equalPredicate) test(values []document.Value) bool {
	if p.operand.IsNull() && len(values) == 0 {
		return true
	}
	for _, v := range expand(values) {
		if compare.Equal(v, p.operand) {
			return true
		}
	}
	return false
}

// rangePredicate implements $gt/$gte/$lt/$lte. Only values in the operand's
// kind class are compared.
type rangePredicate struct {
	op      Operator
	operand document.Value
}

func (p rangePredicate) test(values []document.Value) bool {
	if p.operand.IsNull() {
		if p.op == OpGreaterThanOrEqual || p.op == OpLessThanOrEqual {
			return equalPredicate{operand: p.operand}.test(values)
		}
		return false
	}
	for _, v := range expand(values) {
		if !compare.SameClass(v, p.operand) {
			continue
		}
		c := compare.Compare(v, p.operand)
		switch p.op {
		case OpGreaterThan:
			if c > 0 {
				return true
			}
		case OpGreaterThanOrEqual:
			if c >= 0 {
				return true
			}
		case OpLessThan:
			if c < 0 {
				return true
			}
		case OpLessThanOrEqual:
			if c <= 0 {
				return true
			}
		}
	}
	return false
}

// inPredicate matches when any operand matches: plain values by equality,
// regexes by pattern
type inPredicate struct {
	members []predicate
}

func (p inPredicate) test(values []document.Value) bool {
	for _, m := range p.members {
		if m.test(values) {
			return true
		}
	}
	return false
}

// allPredicate requires every member to match
type allPredicate struct {
	members []predicate
}

func (p allPredicate) test(values []document.Value) bool {
	if len(p.members) == 0 {
		return false
	}
	for _, m := range p.members {
		if !m.test(values) {
			return false
		}
	}
	return true
}

type existsPredicate struct {
	want bool
}

func (p existsPredicate) test(values []document.Value) bool {
	return (len(values) > 0) == p.want
}

type modPredicate struct {
	divisor   int64
	remainder int64
}

func (p modPredicate) test(values []document.Value) bool {
	for _, v := range expand(values) {
		if !v.IsNumber() {
			continue
		}
		n, ok := v.Int64Value()
		if ok && n%p.divisor == p.remainder {
			return true
		}
	}
	return false
}

type sizePredicate struct {
	size int
}

func (p sizePredicate) test(values []document.Value) bool {
	for _, v := range values {
		if arr, ok := v.Array(); ok && len(arr) == p.size {
			return true
		}
	}
	return false
}

// regexPredicate matches strings against the pattern, and stored regexes
// equal to it
type regexPredicate struct {
	source document.Regex
	re     *regexp.Regexp
}

func (p regexPredicate) test(values []document.Value) bool {
	for _, v := range expand(values) {
		if s, ok := v.StringValue(); ok && p.re.MatchString(s) {
			return true
		}
		if r, ok := v.Regex(); ok && r == p.source {
			return true
		}
	}
	return false
}

// typePredicate matches values of any of the listed kinds. number matches
// every numeric kind.
type typePredicate struct {
	types   map[document.Type]bool
	numeric bool
}

func (p typePredicate) test(values []document.Value) bool {
	for _, v := range expand(values) {
		if p.types[v.Type] || (p.numeric && v.IsNumber()) {
			return true
		}
	}
	return false
}

// elemMatchPredicate matches arrays with at least one element satisfying
// either a nested query (documents) or a set of operators (any element)
type elemMatchPredicate struct {
	query     node
	operators predicate
}

func (p elemMatchPredicate) test(values []document.Value) bool {
	for _, v := range values {
		arr, ok := v.Array()
		if !ok {
			continue
		}
		for _, elem := range arr {
			if p.matchElement(elem) {
				return true
			}
		}
	}
	return false
}

func (p elemMatchPredicate) matchElement(elem document.Value) bool {
	if p.operators != nil {
		return p.operators.test([]document.Value{elem})
	}
	doc, ok := elem.Document()
	if !ok {
		return false
	}
	matched, err := p.query.match(doc)
	return err == nil && matched
}

// nearPredicate keeps documents within [min, max] of the center. Distances
// are in coordinate units for planar queries, radians for legacy spherical
// queries and meters for GeoJSON queries.
type nearPredicate struct {
	center geo.Point
	mode   geo.Mode
	meters bool
	min    float64
	max    float64
	hasMax bool
	helper geo.Helper
}

func (p *nearPredicate) distance(values []document.Value) (float64, bool) {
	best, found := 0.0, false
	for _, v := range values {
		for _, pt := range geo.Points(v) {
			d := p.helper.Distance(p.center, pt, p.mode)
			if p.meters {
				d *= geo.EarthRadius
			}
			if !found || d < best {
				best, found = d, true
			}
		}
	}
	return best, found
}

func (p *nearPredicate) test(values []document.Value) bool {
	d, ok := p.distance(values)
	return ok && d >= p.min && (!p.hasMax || d <= p.max)
}

// bounds converts the maximum distance into a search box
func (p *nearPredicate) bounds() (geo.BoundingBox, bool) {
	if !p.hasMax {
		return geo.BoundingBox{}, false
	}
	radius := p.max
	if p.meters {
		radius /= geo.EarthRadius
	}
	return geo.SearchBounds(p.center, radius, p.mode), true
}

type withinPredicate struct {
	shape  geo.Shape
	helper geo.Helper
}

func (p withinPredicate) test(values []document.Value) bool {
	for _, v := range values {
		for _, pt := range geo.Points(v) {
			if p.helper.Within(pt, p.shape) {
				return true
			}
		}
	}
	return false
}
