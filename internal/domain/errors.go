package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by storage when a concurrent writer held or
	// invalidated the row being modified. Callers may retry.
	ErrConflict = errors.New("concurrent write conflict")
)
