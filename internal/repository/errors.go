package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionMismatch is returned when a conditional update finds the row
	// was modified since the caller read it.
	ErrVersionMismatch = errors.New("entity version mismatch")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate entity")
)
