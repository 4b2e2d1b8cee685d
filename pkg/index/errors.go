package index

import (
	"errors"
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

var (
	// ErrInvalidKeySpec is returned for malformed index key specifications
	ErrInvalidKeySpec = errors.New("invalid index key specification")
)

// DuplicateKeyError is returned when a write would give two documents the
// same key tuple in a unique index
type DuplicateKeyError struct {
	Index string
	Key   *document.Document
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("index: duplicate key error, index %q, dup key: %s", e.Index, e.Key)
}
