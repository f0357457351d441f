package storage

import "errors"

var (
	// ErrNotFound is returned when nothing has been persisted under the key.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey is returned when a journal entry id, a (version, index)
	// pair or an investor sequence number is already taken.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrInvalidInput is returned for nil or incomplete records and empty ranges.
	ErrInvalidInput = errors.New("storage: invalid input")
)
