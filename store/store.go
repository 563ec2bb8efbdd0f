package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	serr "github.com/randalmurphal/scribe/errors"
)

// TimeLayout is the canonical UTC timestamp format used in every table.
// Fixed-width fractional seconds keep lexicographic and chronological
// order identical, so age cutoffs can compare strings directly.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders a timestamp in the canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp in the canonical layout.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Now returns the current time in the canonical layout.
func Now() string {
	return FormatTime(time.Now())
}

// Options configures a DB.
type Options struct {
	// BusyTimeout bounds the total time a write transaction spends
	// retrying before failing with a busy error.
	BusyTimeout time.Duration

	// MaxRetries bounds the number of attempts per write transaction.
	MaxRetries int

	// Logger receives transaction diagnostics. Defaults to a no-op.
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 30 * time.Second
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// DB is the shared database handle.
type DB struct {
	sql  *sql.DB
	log  *zap.Logger
	opts Options
}

// Open opens (creating if necessary) the database at path and ensures
// the schema is in place.
func Open(path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, serr.Internal(err, "create database directory")
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(1000)",
		url.PathEscape(path),
	)

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, serr.Internal(err, "open database %s", path)
	}

	db := &DB{sql: handle, log: opts.Logger, opts: opts}

	ctx, cancel := context.WithTimeout(context.Background(), opts.BusyTimeout)
	defer cancel()

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, serr.Internal(err, "connect to database %s", path)
	}

	if err := db.initSchema(ctx); err != nil {
		handle.Close()
		return nil, err
	}

	db.log.Debug("database opened", zap.String("path", path))
	return db, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Query runs a read-only query outside any transaction.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row read outside any transaction.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, query, args...)
}

// Exec runs a standalone statement outside RunAtomic. Intended for
// maintenance pragmas; entity mutations belong inside RunAtomic.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.sql.ExecContext(ctx, query, args...)
}

func (d *DB) initSchema(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, schema); err != nil {
		return serr.Internal(err, "initialize schema")
	}
	return nil
}
