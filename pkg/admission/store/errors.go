package store

import "errors"

// Standard errors for counter store operations.
var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when creating a record another writer
	// created first.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrConflict is returned when a conditional update lost against a
	// concurrent writer. Callers should re-read and retry.
	ErrConflict = errors.New("record version conflict")

	// ErrInvalidInput is returned when the input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionFailed is returned when the store connection fails.
	ErrConnectionFailed = errors.New("store connection failed")
)
