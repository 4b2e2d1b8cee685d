package database

import (
	"errors"
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/index"
	"github.com/sjyun/fongo-sub000/pkg/query"
	"github.com/sjyun/fongo-sub000/pkg/update"
)

var (
	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrCollectionNotFound is returned when a collection is not found
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection twice
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidCollectionName is returned for empty names or names with '$'
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDatabaseClosed is returned when operating on a closed database
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrIndexNotFound is returned when dropping an unknown index
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexExists is returned when an index name is reused with other keys
	ErrIndexExists = errors.New("index already exists with different options")

	// ErrPrimaryIndex is returned when dropping the _id index
	ErrPrimaryIndex = errors.New("cannot drop the _id index")

	// ErrInvalidID is returned for _id values that cannot identify a document
	ErrInvalidID = errors.New("invalid _id")

	// ErrInvalidReplacement is returned when a replacement contains operators
	ErrInvalidReplacement = errors.New("replacement document must not contain update operators")

	// ErrMultiReplacement is returned for multi updates without operators
	ErrMultiReplacement = errors.New("multi update requires update operators")

	// ErrInvalidFindAndModify is returned unless exactly one of Update and
	// Remove is set
	ErrInvalidFindAndModify = errors.New("findAndModify requires exactly one of update and remove")

	// ErrStoreExhausted is returned when a collection has used every handle
	ErrStoreExhausted = errors.New("collection store exhausted")
)

// CapacityError is returned when an insert would exceed the configured
// per-collection document ceiling
type CapacityError struct {
	Collection string
	Limit      int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("collection %q is full: limit of %d documents reached", e.Collection, e.Limit)
}

// errorKind names the kind of err for metrics and logs
func errorKind(err error) string {
	var (
		compileErr     *query.CompilationError
		scriptErr      *query.ScriptError
		dupErr         *index.DuplicateKeyError
		conflictErr    *update.ConflictError
		typeErr        *update.TypeError
		unsupportedErr *update.UnsupportedOperatorError
		capacityErr    *CapacityError
		sortErr        *compare.SortSpecError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &compileErr):
		return "compilation"
	case errors.As(err, &scriptErr):
		return "script"
	case errors.As(err, &dupErr):
		return "duplicate_key"
	case errors.As(err, &conflictErr):
		return "update_conflict"
	case errors.As(err, &typeErr):
		return "update_type"
	case errors.As(err, &unsupportedErr):
		return "unsupported_operator"
	case errors.As(err, &capacityErr):
		return "capacity"
	case errors.As(err, &sortErr):
		return "sort_spec"
	case errors.Is(err, ErrDocumentNotFound):
		return "not_found"
	}
	return "other"
}
