package store

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"go.uber.org/zap"

	serr "github.com/randalmurphal/scribe/errors"
)

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 1 * time.Second
)

// Tx is a write transaction. All statements run with the context passed
// to RunAtomic.
type Tx struct {
	ctx        context.Context
	tx         *sql.Tx
	onRollback []func()
	onCommit   []func()
}

// Context returns the context the transaction runs under.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

// Query runs a query inside the transaction.
func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

// QueryRow runs a single-row query inside the transaction.
func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

// OnRollback registers a compensation that runs if the transaction does
// not commit. Components that perform physical file writes inside a
// transaction must register the matching undo here.
func (t *Tx) OnRollback(fn func()) {
	t.onRollback = append(t.onRollback, fn)
}

// OnCommit registers a hook that runs after a successful commit, e.g.
// removing bytes whose database row is now gone.
func (t *Tx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

func (t *Tx) runRollbackHooks() {
	// Reverse order, mirroring how the side effects were stacked.
	for i := len(t.onRollback) - 1; i >= 0; i-- {
		t.onRollback[i]()
	}
}

func (t *Tx) runCommitHooks() {
	for _, fn := range t.onCommit {
		fn()
	}
}

// RunAtomic executes fn inside a single immediate write transaction.
// If fn returns an error, every persisted mutation is rolled back and
// all OnRollback compensations run. Busy conflicts are retried with
// jittered exponential backoff; when the budget is exhausted the call
// fails with a busy error rather than blocking.
func (d *DB) RunAtomic(ctx context.Context, fn func(tx *Tx) error) error {
	deadline := time.Now().Add(d.opts.BusyTimeout)
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxRetries; attempt++ {
		err := d.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsBusyConflict(err) {
			return err
		}
		lastErr = err

		if time.Now().After(deadline) {
			break
		}

		d.log.Debug("write transaction retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return serr.Internal(ctx.Err(), "write transaction cancelled")
		case <-time.After(jitter(backoff)):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return serr.Busy(lastErr, "write transaction could not acquire the database")
}

func (d *DB) runOnce(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	t := &Tx{ctx: ctx, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			t.runRollbackHooks()
			panic(p)
		}
	}()

	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			d.log.Warn("rollback failed", zap.Error(rbErr))
		}
		t.runRollbackHooks()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		t.runRollbackHooks()
		return err
	}

	t.runCommitHooks()
	return nil
}

// jitter returns a duration in [d/2, d), breaking lockstep between
// writers that collided on the same commit.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
