package storage

import "errors"

// Sentinels shared by the blob and trade feed stores. Backends translate
// driver errors into these so callers can match with errors.Is.
var (
	// ErrNotFound means no blob or batch exists for the instrument.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey means the (instrument, fingerprint) or
	// (instrument, batch) pair was already written. Stores never overwrite.
	ErrDuplicateKey = errors.New("storage: already stored")

	// ErrInvalidInput means the value was rejected before reaching the backend.
	ErrInvalidInput = errors.New("storage: invalid input")
)
