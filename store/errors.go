package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrConflict is returned when an update was based on a stale revision.
	ErrConflict = errors.New("store: revision conflict")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// DuplicateError names the unique index that rejected a write.
type DuplicateError struct {
	Index string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("store: duplicate key on %s", e.Index)
}

// Unwrap lets callers match with errors.Is(err, ErrDuplicate).
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}
