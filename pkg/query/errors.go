package query

import "fmt"

// CompilationError reports a malformed query. Nothing is evaluated when
// compilation fails.
type CompilationError struct {
	Operator string
	Path     string
	Reason   string
}

func (e *CompilationError) Error() string {
	switch {
	case e.Path != "" && e.Operator != "":
		return fmt.Sprintf("query: %s on %q: %s", e.Operator, e.Path, e.Reason)
	case e.Operator != "":
		return fmt.Sprintf("query: %s: %s", e.Operator, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("query: %q: %s", e.Path, e.Reason)
	}
	return "query: " + e.Reason
}

func compileErr(op Operator, path, format string, args ...interface{}) error {
	return &CompilationError{Operator: string(op), Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ScriptError wraps a failure of the $where evaluator
type ScriptError struct {
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("query: $where %q: %v", e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
