package relation

import (
	"errors"
	"fmt"

	"github.com/mickamy/ormrel/schema"
)

var (
	// ErrExecutionFailed matches every *ExecutionError.
	ErrExecutionFailed = errors.New("relation: execution failed")

	// ErrNotPivot is returned by pivot operations on a relationship that is
	// not stored in a pivot table.
	ErrNotPivot = errors.New("relation: relationship has no pivot table")
)

// ExecutionError wraps an error returned by the query executor while
// resolving or writing a relationship. It is never retried.
type ExecutionError struct {
	Owner    schema.EntityType
	Relation string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Relation == "" {
		return fmt.Sprintf("relation: %s: execution failed: %v", e.Owner, e.Err)
	}
	return fmt.Sprintf("relation: %s.%s: execution failed: %v", e.Owner, e.Relation, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrExecutionFailed, so that
// errors.Is(err, ErrExecutionFailed) holds for every ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// execError wraps err as an ExecutionError unless it is a catalog or
// hydration error raised while reading rows.
func execError(owner schema.EntityType, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, schema.ErrMissingColumn) || errors.Is(err, schema.ErrUnknownEntityType) ||
		errors.Is(err, schema.ErrUnknownDiscriminator) {
		return err
	}
	return &ExecutionError{Owner: owner, Relation: name, Err: err}
}
