package compare

import (
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// InternalError reports a pair of values the comparator has no rule for.
// Every kind in the value union has a weight, so seeing one means a value was
// built outside the document package's constructors.
type InternalError struct {
	Left  document.Type
	Right document.Type
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("compare: no ordering between %s and %s", e.Left, e.Right)
}

// SortSpecError reports a malformed sort specification
type SortSpecError struct {
	Field  string
	Reason string
}

func (e *SortSpecError) Error() string {
	return fmt.Sprintf("compare: invalid sort on %q: %s", e.Field, e.Reason)
}
