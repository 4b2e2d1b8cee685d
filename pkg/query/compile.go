package query

import (
	"math"
	"strings"

	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/geo"
)

type compiler struct {
	opts options
	// nested is set while compiling the argument of $elemMatch
	nested  bool
	clauses []*fieldNode
	near    *fieldNode
}

// compileQuery compiles a query document into a conjunction of its keys.
// conjunctive is false below $or and $nor; only conjunctive field clauses
// are recorded for index selection.
func (c *compiler) compileQuery(q *document.Document, conjunctive bool) (node, error) {
	if q == nil {
		return andNode{}, nil
	}
	nodes := make(andNode, 0, q.Len())
	for _, key := range q.Keys() {
		v, _ := q.Get(key)
		op := Operator(key)
		switch op {
		case OpAnd, OpOr, OpNor:
			subs, err := c.compileList(op, v, conjunctive && op == OpAnd)
			if err != nil {
				return nil, err
			}
			switch op {
			case OpAnd:
				nodes = append(nodes, andNode(subs))
			case OpOr:
				nodes = append(nodes, orNode(subs))
			default:
				nodes = append(nodes, norNode(subs))
			}
		case OpWhere:
			n, err := c.compileWhere(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case OpComment:
		default:
			if strings.HasPrefix(key, "$") {
				return nil, compileErr(op, "", "unknown top level operator")
			}
			fn, err := c.compileField(key, v, conjunctive)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, fn)
			if conjunctive {
				c.clauses = append(c.clauses, fn)
			}
		}
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return nodes, nil
}

func (c *compiler) compileList(op Operator, v document.Value, conjunctive bool) ([]node, error) {
	items, ok := v.Array()
	if !ok || len(items) == 0 {
		return nil, compileErr(op, "", "argument must be a non-empty array")
	}
	subs := make([]node, 0, len(items))
	for _, item := range items {
		doc, ok := item.Document()
		if !ok {
			return nil, compileErr(op, "", "array elements must be documents, got %s", item.Type)
		}
		n, err := c.compileQuery(doc, conjunctive)
		if err != nil {
			return nil, err
		}
		subs = append(subs, n)
	}
	return subs, nil
}

func (c *compiler) compileWhere(v document.Value) (node, error) {
	if c.nested {
		return nil, compileErr(OpWhere, "", "not allowed inside $elemMatch")
	}
	script, ok := v.StringValue()
	if !ok {
		return nil, compileErr(OpWhere, "", "argument must be a string, got %s", v.Type)
	}
	if c.opts.scripts == nil {
		return nil, compileErr(OpWhere, "", "no script evaluator configured")
	}
	if validator, ok := c.opts.scripts.(ScriptValidator); ok {
		if err := validator.Validate(script); err != nil {
			return nil, compileErr(OpWhere, "", "%v", err)
		}
	}
	return whereNode{script: script, eval: c.opts.scripts}, nil
}

func (c *compiler) compileField(path string, v document.Value, conjunctive bool) (*fieldNode, error) {
	if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
		return nil, compileErr("", path, "invalid field path")
	}
	fn := &fieldNode{path: path}

	if r, ok := v.Regex(); ok {
		p, err := compileRegex(path, r)
		if err != nil {
			return nil, err
		}
		fn.preds = andPredicate{p}
		return fn, nil
	}

	if doc, ok := v.Document(); ok && hasOperators(doc) {
		preds, err := c.compileOperators(fn, doc, conjunctive)
		if err != nil {
			return nil, err
		}
		fn.preds = preds
		return fn, nil
	}

	value := v
	fn.equality = &value
	fn.preds = andPredicate{equalPredicate{operand: v}}
	return fn, nil
}

// hasOperators reports whether doc is an operator document. A document with
// no recognized operator is matched literally.
func hasOperators(doc *document.Document) bool {
	for _, k := range doc.Keys() {
		if fieldOperators[Operator(k)] {
			return true
		}
	}
	return false
}

func (c *compiler) compileOperators(fn *fieldNode, doc *document.Document, conjunctive bool) (andPredicate, error) {
	count := 0
	for _, k := range doc.Keys() {
		if fieldOperators[Operator(k)] {
			count++
		}
	}
	if c.opts.maxOperatorsPerField > 0 && count > c.opts.maxOperatorsPerField {
		return nil, compileErr("", fn.path, "%d operators on one field, at most %d allowed", count, c.opts.maxOperatorsPerField)
	}

	preds := make(andPredicate, 0, count)
	for _, k := range doc.Keys() {
		op := Operator(k)
		arg, _ := doc.Get(k)
		switch {
		case modifiers[op]:
			if err := checkModifier(fn.path, op, doc); err != nil {
				return nil, err
			}
			continue
		case !fieldOperators[op]:
			if c.opts.strictOperators && strings.HasPrefix(k, "$") {
				return nil, compileErr(op, fn.path, "unknown operator")
			}
			continue
		}
		p, err := c.compileOperator(fn, op, arg, doc, conjunctive)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// checkModifier rejects modifiers that appear without the operator they
// qualify
func checkModifier(path string, op Operator, doc *document.Document) error {
	switch op {
	case OpOptions:
		if !doc.Has(string(OpRegex)) {
			return compileErr(op, path, "requires $regex")
		}
	case OpMaxDistance, OpMinDistance:
		if !doc.Has(string(OpNear)) && !doc.Has(string(OpNearSphere)) {
			return compileErr(op, path, "requires $near or $nearSphere")
		}
	}
	return nil
}

func (c *compiler) compileOperator(fn *fieldNode, op Operator, arg document.Value, siblings *document.Document, conjunctive bool) (predicate, error) {
	path := fn.path
	switch op {
	case OpEqual:
		if fn.equality == nil {
			value := arg
			fn.equality = &value
		}
		return equalPredicate{operand: arg}, nil

	case OpNotEqual:
		return notPredicate{inner: equalPredicate{operand: arg}}, nil

	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return rangePredicate{op: op, operand: arg}, nil

	case OpIn, OpNotIn:
		items, ok := arg.Array()
		if !ok {
			return nil, compileErr(op, path, "argument must be an array, got %s", arg.Type)
		}
		members := make([]predicate, 0, len(items))
		for _, item := range items {
			if r, ok := item.Regex(); ok {
				p, err := compileRegex(path, r)
				if err != nil {
					return nil, err
				}
				members = append(members, p)
				continue
			}
			if d, ok := item.Document(); ok && hasOperators(d) {
				return nil, compileErr(op, path, "cannot contain operator documents")
			}
			members = append(members, equalPredicate{operand: item})
		}
		if op == OpNotIn {
			return notPredicate{inner: inPredicate{members: members}}, nil
		}
		return inPredicate{members: members}, nil

	case OpAll:
		items, ok := arg.Array()
		if !ok {
			return nil, compileErr(op, path, "argument must be an array, got %s", arg.Type)
		}
		members := make([]predicate, 0, len(items))
		for _, item := range items {
			switch {
			case item.Type == document.TypeRegex:
				r, _ := item.Regex()
				p, err := compileRegex(path, r)
				if err != nil {
					return nil, err
				}
				members = append(members, p)
			case isElemMatchDocument(item):
				d, _ := item.Document()
				em, _ := d.Get(string(OpElemMatch))
				p, err := c.compileElemMatch(path, em)
				if err != nil {
					return nil, err
				}
				members = append(members, p)
			default:
				members = append(members, equalPredicate{operand: item})
			}
		}
		return allPredicate{members: members}, nil

	case OpExists:
		return existsPredicate{want: arg.Truthy()}, nil

	case OpMod:
		parts, ok := arg.Array()
		if !ok || len(parts) != 2 {
			return nil, compileErr(op, path, "argument must be [divisor, remainder]")
		}
		divisor, okD := parts[0].Int64Value()
		remainder, okR := parts[1].Int64Value()
		if !okD || !okR || !parts[0].IsNumber() || !parts[1].IsNumber() {
			return nil, compileErr(op, path, "divisor and remainder must be numbers")
		}
		if divisor == 0 {
			return nil, compileErr(op, path, "divisor cannot be 0")
		}
		return modPredicate{divisor: divisor, remainder: remainder}, nil

	case OpSize:
		f, ok := arg.Float64Value()
		if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return nil, compileErr(op, path, "argument must be a non-negative whole number")
		}
		return sizePredicate{size: int(f)}, nil

	case OpElemMatch:
		return c.compileElemMatch(path, arg)

	case OpRegex:
		var r document.Regex
		switch arg.Type {
		case document.TypeString:
			r.Pattern, _ = arg.StringValue()
		case document.TypeRegex:
			r, _ = arg.Regex()
		default:
			return nil, compileErr(op, path, "argument must be a string or regex, got %s", arg.Type)
		}
		if optsVal, ok := siblings.Get(string(OpOptions)); ok {
			opts, ok := optsVal.StringValue()
			if !ok {
				return nil, compileErr(OpOptions, path, "must be a string")
			}
			if r.Options != "" && opts != "" {
				return nil, compileErr(OpOptions, path, "options set twice")
			}
			if opts != "" {
				r.Options = opts
			}
		}
		return compileRegex(path, r)

	case OpType:
		return parseTypes(path, arg)

	case OpNot:
		if r, ok := arg.Regex(); ok {
			p, err := compileRegex(path, r)
			if err != nil {
				return nil, err
			}
			return notPredicate{inner: p}, nil
		}
		inner, ok := arg.Document()
		if !ok || !hasOperators(inner) {
			return nil, compileErr(op, path, "argument must be a regex or an operator document")
		}
		if inner.Has(string(OpNear)) || inner.Has(string(OpNearSphere)) {
			return nil, compileErr(op, path, "cannot wrap $near")
		}
		shadow := &fieldNode{path: path}
		preds, err := c.compileOperators(shadow, inner, false)
		if err != nil {
			return nil, err
		}
		return notPredicate{inner: preds}, nil

	case OpNear, OpNearSphere:
		if c.nested || !conjunctive {
			return nil, compileErr(op, path, "only allowed in top level conjunctions")
		}
		if c.near != nil {
			return nil, compileErr(op, path, "only one $near clause is allowed")
		}
		p, err := c.compileNear(path, op, arg, siblings)
		if err != nil {
			return nil, err
		}
		fn.near = p
		c.near = fn
		return p, nil

	case OpGeoWithin, OpWithin:
		spec, ok := arg.Document()
		if !ok {
			return nil, compileErr(op, path, "argument must be a shape document")
		}
		shape, err := geo.ParseShape(spec)
		if err != nil {
			return nil, compileErr(op, path, "%v", err)
		}
		p := &withinPredicate{shape: shape, helper: c.opts.geometry}
		fn.within = p
		return p, nil
	}
	return nil, compileErr(op, path, "unsupported operator")
}

func isElemMatchDocument(v document.Value) bool {
	d, ok := v.Document()
	return ok && d.Len() == 1 && d.Has(string(OpElemMatch))
}

// compileElemMatch compiles the argument either as a set of operators applied
// to each element, or as a query applied to each document element
func (c *compiler) compileElemMatch(path string, arg document.Value) (predicate, error) {
	q, ok := arg.Document()
	if !ok {
		return nil, compileErr(OpElemMatch, path, "argument must be a document, got %s", arg.Type)
	}
	sub := &compiler{opts: c.opts, nested: true}

	if isOperatorOnly(q) {
		preds, err := sub.compileOperators(&fieldNode{path: path}, q, false)
		if err != nil {
			return nil, err
		}
		return elemMatchPredicate{operators: preds}, nil
	}
	n, err := sub.compileQuery(q, false)
	if err != nil {
		return nil, err
	}
	return elemMatchPredicate{query: n}, nil
}

// isOperatorOnly reports whether every key is a field operator or modifier
func isOperatorOnly(q *document.Document) bool {
	if q.Len() == 0 || !hasOperators(q) {
		return false
	}
	for _, k := range q.Keys() {
		op := Operator(k)
		if !fieldOperators[op] && !modifiers[op] {
			return false
		}
	}
	return true
}

func compileRegex(path string, r document.Regex) (predicate, error) {
	re, err := r.Compile()
	if err != nil {
		return nil, compileErr(OpRegex, path, "%v", err)
	}
	return regexPredicate{source: r, re: re}, nil
}

var typeAliases = func() map[string]document.Type {
	m := make(map[string]document.Type, len(document.Types))
	for _, t := range document.Types {
		m[t.String()] = t
	}
	return m
}()

func parseTypes(path string, arg document.Value) (predicate, error) {
	items := []document.Value{arg}
	if arr, ok := arg.Array(); ok {
		if len(arr) == 0 {
			return nil, compileErr(OpType, path, "argument must not be empty")
		}
		items = arr
	}
	p := typePredicate{types: make(map[document.Type]bool)}
	for _, item := range items {
		if s, ok := item.StringValue(); ok {
			if s == "number" {
				p.numeric = true
				continue
			}
			t, ok := typeAliases[s]
			if !ok {
				return nil, compileErr(OpType, path, "unknown type alias %q", s)
			}
			p.types[t] = true
			continue
		}
		code, ok := item.Int64Value()
		if !ok || !item.IsNumber() {
			return nil, compileErr(OpType, path, "argument must be a type number or alias, got %s", item.Type)
		}
		t, ok := typeFromCode(code)
		if !ok {
			return nil, compileErr(OpType, path, "unknown type code %d", code)
		}
		p.types[t] = true
	}
	return p, nil
}

func typeFromCode(code int64) (document.Type, bool) {
	if code == -1 {
		return document.TypeMinKey, true
	}
	if code < 0 || code > 0x7F {
		return 0, false
	}
	for _, t := range document.Types {
		if t != document.TypeMinKey && int64(t) == code {
			return t, true
		}
	}
	return 0, false
}

func (c *compiler) compileNear(path string, op Operator, arg document.Value, siblings *document.Document) (*nearPredicate, error) {
	p := &nearPredicate{mode: geo.Planar, helper: c.opts.geometry}
	if op == OpNearSphere {
		p.mode = geo.Spherical
	}
	maxV, hasMax := siblings.Get(string(OpMaxDistance))
	minV, hasMin := siblings.Get(string(OpMinDistance))

	spec, isDoc := arg.Document()
	if isDoc && spec.Has(string(OpGeometry)) {
		g, _ := spec.Get(string(OpGeometry))
		gd, ok := g.Document()
		if !ok {
			return nil, compileErr(op, path, "$geometry must be a GeoJSON point")
		}
		if t, _ := gd.Get("type"); t.Data != "Point" {
			return nil, compileErr(op, path, "$geometry must be a GeoJSON point")
		}
		center, err := geo.ParseGeoJSONPoint(gd)
		if err != nil {
			return nil, compileErr(op, path, "%v", err)
		}
		p.center, p.mode, p.meters = center, geo.Spherical, true
		if v, ok := spec.Get(string(OpMaxDistance)); ok {
			maxV, hasMax = v, true
		}
		if v, ok := spec.Get(string(OpMinDistance)); ok {
			minV, hasMin = v, true
		}
	} else {
		center, ok := geo.PointFromValue(arg)
		if !ok {
			return nil, compileErr(op, path, "argument must be a point, got %s", arg)
		}
		p.center = center
	}

	if hasMax {
		d, ok := maxV.Float64Value()
		if !ok || d < 0 || math.IsNaN(d) {
			return nil, compileErr(OpMaxDistance, path, "must be a non-negative number")
		}
		p.max, p.hasMax = d, true
	}
	if hasMin {
		d, ok := minV.Float64Value()
		if !ok || d < 0 || math.IsNaN(d) {
			return nil, compileErr(OpMinDistance, path, "must be a non-negative number")
		}
		p.min = d
	}
	return p, nil
}
