package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails before any
	// state is touched.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when an optimistic version check fails on
	// update (another writer changed the row first).
	ErrConflict = errors.New("version conflict")
)
