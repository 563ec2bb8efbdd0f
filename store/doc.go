// Package store provides the transactional persistence substrate for the
// transcript engine.
//
// Core types:
//   - DB: SQLite-backed handle with schema management and read helpers
//   - Tx: A write transaction with rollback/commit hooks for physical
//     side effects
//
// Every mutating operation in the engine runs through DB.RunAtomic, which
// executes the given function inside a single immediate transaction.
// Returning an error undoes all persisted mutations and runs any
// compensations registered with Tx.OnRollback, so physical file writes
// performed inside the transaction are reversed as well. Conflicting
// writers are retried with jittered exponential backoff; a writer that
// cannot make progress within the configured budget fails with a busy
// error instead of blocking indefinitely.
package store
