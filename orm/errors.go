package orm

import "errors"

var (
	// ErrNotFound is returned when a query expects exactly one row but finds none.
	ErrNotFound = errors.New("orm: not found")

	// ErrMissingWhere is returned by Delete and UpdateColumns when no WHERE
	// clause has been set.
	ErrMissingWhere = errors.New("orm: statement without WHERE clause is not allowed")
)
