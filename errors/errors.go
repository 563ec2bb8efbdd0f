package errors

import "errors"

// Kind sentinels for storage errors.
var (
	// ErrNotFound indicates an unknown file, job, transcript or version id.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates bad input rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a duplicate constraint, an exceeded quota, or
	// a delete blocked by live references.
	ErrConflict = errors.New("conflict")

	// ErrIntegrity indicates an illegal state transition or an invariant
	// violation detected before commit.
	ErrIntegrity = errors.New("integrity violation")

	// ErrInternal indicates an I/O failure or unexpected storage error.
	ErrInternal = errors.New("internal error")

	// ErrBusy indicates a writer could not make progress within the
	// configured retry budget.
	ErrBusy = errors.New("storage busy")
)
