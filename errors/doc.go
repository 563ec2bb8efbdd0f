// Package errors defines the error taxonomy shared by every storage
// component.
//
// Core types:
//   - Error: Wraps a kind sentinel with a message and optional detail
//
// Kind sentinels:
//   - ErrNotFound: Unknown file, job, transcript or version id
//   - ErrValidation: Bad input rejected before any mutation
//   - ErrConflict: Duplicate constraint, quota exceeded, delete blocked
//   - ErrIntegrity: Illegal state transition or invariant violation
//   - ErrInternal: I/O failure or unexpected storage error
//   - ErrBusy: Writer could not make progress within the retry budget
//
// Example usage:
//
//	if err := files.Delete(ctx, id, false); err != nil {
//	    if errors.IsConflict(err) {
//	        // still referenced by jobs
//	    }
//	}
package errors
