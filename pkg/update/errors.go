package update

import (
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// ConflictError reports two operators of one update targeting the same path,
// or paths where one is a prefix of the other
type ConflictError struct {
	Path  string
	Other string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("update: updating the path %q would create a conflict at %q", e.Path, e.Other)
}

// TypeError reports an operator argument or stored value of the wrong kind
type TypeError struct {
	Operator string
	Path     string
	Kind     document.Type
	Reason   string
}

func (e *TypeError) Error() string {
	msg := "update: " + e.Operator
	if e.Path != "" {
		msg += fmt.Sprintf(" on %q", e.Path)
	}
	if e.Kind != 0 {
		msg += fmt.Sprintf(" (%s)", e.Kind)
	}
	return msg + ": " + e.Reason
}

// UnsupportedOperatorError reports a top-level key that is not an update
// operator in an update document that uses operators
type UnsupportedOperatorError struct {
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("update: unsupported update operator %q", e.Operator)
}

func typeErr(op Operator, path string, kind document.Type, format string, args ...interface{}) error {
	return &TypeError{Operator: string(op), Path: path, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
