package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record whose
	// uniqueness key already exists. Re-ingested activities land here and
	// are counted as skips, never treated as failures.
	ErrDuplicateKey = errors.New("duplicate key: record already ingested")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
