// Package script evaluates $where predicates written as CEL expressions.
//
// The document is bound to both `this` and `doc`:
//
//	this.age >= 18 && this.tags.exists(t, t == "admin")
package script

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// ErrNotBoolean is returned when an expression does not produce a bool
var ErrNotBoolean = errors.New("script: expression must evaluate to a bool")

// CELEvaluator compiles and caches CEL programs. It is safe for concurrent use.
type CELEvaluator struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program
}

// NewCELEvaluator creates an evaluator with the document variables declared
func NewCELEvaluator() (*CELEvaluator, error) {
	docType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("this", docType),
		cel.Variable("doc", docType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("script: create environment: %w", err)
	}
	return &CELEvaluator{env: env}, nil
}

// Validate compiles the script without running it
func (e *CELEvaluator) Validate(script string) error {
	_, err := e.program(script)
	return err
}

// Evaluate runs the script against doc
func (e *CELEvaluator) Evaluate(script string, doc *document.Document) (bool, error) {
	prg, err := e.program(script)
	if err != nil {
		return false, err
	}
	vars := documentMap(doc)
	out, _, err := prg.Eval(map[string]interface{}{"this": vars, "doc": vars})
	if err != nil {
		return false, fmt.Errorf("script: eval: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, ErrNotBoolean
	}
	return result, nil
}

func (e *CELEvaluator) program(script string) (cel.Program, error) {
	if prg, ok := e.programs.Load(script); ok {
		return prg.(cel.Program), nil
	}

	ast, issues := e.env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("script: compile: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, ErrNotBoolean
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("script: program: %w", err)
	}
	e.programs.Store(script, prg)
	return prg, nil
}

// documentMap converts a document into values CEL can adapt natively.
// Identifiers become hex strings, regexes their pattern and MinKey/MaxKey null.
func documentMap(doc *document.Document) map[string]interface{} {
	m := make(map[string]interface{}, doc.Len())
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		m[k] = nativeValue(v)
	}
	return m
}

func nativeValue(v document.Value) interface{} {
	switch v.Type {
	case document.TypeDocument:
		d, _ := v.Document()
		return documentMap(d)
	case document.TypeArray:
		arr, _ := v.Array()
		out := make([]interface{}, len(arr))
		for i, elem := range arr {
			out[i] = nativeValue(elem)
		}
		return out
	case document.TypeInt32:
		n, _ := v.Int64Value()
		return n
	case document.TypeObjectID:
		return v.Data.(document.ObjectID).Hex()
	case document.TypeRegex:
		r, _ := v.Regex()
		return r.Pattern
	case document.TypeDBRef:
		r, _ := v.DBRef()
		return documentMap(r.Document())
	case document.TypeMinKey, document.TypeMaxKey, document.TypeNull:
		return nil
	}
	return v.Data
}
