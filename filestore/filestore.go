package filestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/randalmurphal/scribe/config"
	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

// uploadChunkSize is the copy buffer size; cancellation is checked once
// per chunk.
const uploadChunkSize = 64 * 1024

// File is a stored audio object.
type File struct {
	ID           int64
	ContentHash  string
	OriginalName string
	StoragePath  string
	SizeBytes    int64
	Format       string
	UploadedAt   time.Time
}

// Store manages the physical objects and their file rows.
type Store struct {
	db  *store.DB
	cfg config.Storage
	log *zap.Logger
}

// New creates a file store and ensures its directories exist.
func New(db *store.DB, cfg config.Storage, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	for _, dir := range []string{cfg.BaseDir, cfg.ArchiveDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, serr.Internal(err, "create storage directory %s", dir)
		}
	}

	return &Store{db: db, cfg: cfg, log: log}, nil
}

// Upload streams source into storage, deduplicating on content hash.
// It returns the file id and whether a new object was stored. Format and
// size are validated before any byte reaches the permanent layout; a
// failure after the copy but before commit removes the copy again.
func (s *Store) Upload(ctx context.Context, source io.Reader, originalName string) (int64, bool, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if !s.cfg.FormatAllowed(ext) {
		return 0, false, serr.Validation(
			"unsupported format %q (allowed: %s)", ext, strings.Join(s.cfg.AllowedFormats, ", "))
	}

	tempPath, hash, size, err := s.stageUpload(ctx, source)
	if err != nil {
		return 0, false, err
	}
	// The staged copy is removed on every path that does not rename it
	// into the permanent layout.
	staged := true
	defer func() {
		if staged {
			os.Remove(tempPath)
		}
	}()

	if size < s.cfg.MinFileSize {
		return 0, false, serr.Validation("file too small: %s (minimum %s)",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.cfg.MinFileSize)))
	}

	var (
		fileID int64
		isNew  bool
	)
	err = s.db.RunAtomic(ctx, func(tx *store.Tx) error {
		// Dedup lookup inside the transaction: a racing upload of the
		// same bytes serializes here and sees the winner's row.
		var existing int64
		row := tx.QueryRow(`SELECT id FROM files WHERE content_hash = ?`, hash)
		switch err := row.Scan(&existing); err {
		case nil:
			fileID, isNew = existing, false
			return nil
		case sql.ErrNoRows:
		default:
			return serr.Internal(err, "look up content hash")
		}

		// Quota is reserved in the same transaction as the insert so
		// concurrent uploads cannot both pass the check.
		var used int64
		if err := tx.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM files`).Scan(&used); err != nil {
			return serr.Internal(err, "read storage usage")
		}
		if used+size > s.cfg.QuotaMaxBytes {
			return serr.Conflict("storage quota exceeded: %s + %s > %s",
				humanize.Bytes(uint64(used)), humanize.Bytes(uint64(size)),
				humanize.Bytes(uint64(s.cfg.QuotaMaxBytes)))
		}

		dest := s.storagePath(hash, ext, time.Now())
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return serr.Internal(err, "create partition directory")
		}
		if err := os.Rename(tempPath, dest); err != nil {
			return serr.Internal(err, "move upload into storage")
		}
		staged = false
		// On rollback the copy moves back to staging so a busy retry
		// can run the transaction again from the same bytes.
		tx.OnRollback(func() {
			if err := os.Rename(dest, tempPath); err != nil {
				os.Remove(dest)
			} else {
				staged = true
			}
		})

		res, err := tx.Exec(
			`INSERT INTO files (content_hash, original_name, storage_path, size_bytes, format, uploaded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			hash, originalName, dest, size, ext, store.Now())
		if err != nil {
			if store.IsUniqueConstraint(err) {
				return serr.Conflict("duplicate content hash %s", hash[:8])
			}
			return serr.Internal(err, "insert file row")
		}

		fileID, err = res.LastInsertId()
		if err != nil {
			return serr.Internal(err, "read file id")
		}
		isNew = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	if isNew {
		s.log.Info("file uploaded",
			zap.Int64("file_id", fileID),
			zap.String("name", originalName),
			zap.String("size", humanize.Bytes(uint64(size))))
	} else {
		s.log.Info("duplicate upload deduplicated",
			zap.Int64("file_id", fileID),
			zap.String("name", originalName),
			zap.String("hash", hash[:8]))
	}

	return fileID, isNew, nil
}

// stageUpload copies source into a temp file while hashing it, enforcing
// the max size and checking cancellation at chunk boundaries.
func (s *Store) stageUpload(ctx context.Context, source io.Reader) (path, hash string, size int64, err error) {
	temp, err := os.CreateTemp(s.cfg.TempDir, "upload-*")
	if err != nil {
		return "", "", 0, serr.Internal(err, "create staging file")
	}
	path = temp.Name()

	cleanup := func(cause error) (string, string, int64, error) {
		temp.Close()
		os.Remove(path)
		return "", "", 0, cause
	}

	digest := sha256.New()
	buf := make([]byte, uploadChunkSize)

	for {
		select {
		case <-ctx.Done():
			return cleanup(serr.Internal(ctx.Err(), "upload cancelled"))
		default:
		}

		n, readErr := source.Read(buf)
		if n > 0 {
			size += int64(n)
			if size > s.cfg.MaxFileSize {
				return cleanup(serr.Validation("file too large (maximum %s)",
					humanize.Bytes(uint64(s.cfg.MaxFileSize))))
			}
			digest.Write(buf[:n])
			if _, werr := temp.Write(buf[:n]); werr != nil {
				return cleanup(serr.Internal(werr, "write staging file"))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return cleanup(serr.Internal(readErr, "read upload stream"))
		}
	}

	if err := temp.Close(); err != nil {
		os.Remove(path)
		return "", "", 0, serr.Internal(err, "close staging file")
	}

	return path, hex.EncodeToString(digest.Sum(nil)), size, nil
}

func (s *Store) storagePath(hash, ext string, now time.Time) string {
	return filepath.Join(s.cfg.BaseDir,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		hash+"."+ext)
}

// Get returns a file by id.
func (s *Store) Get(ctx context.Context, fileID int64) (*File, error) {
	return scanFile(s.db.QueryRow(ctx,
		`SELECT id, content_hash, original_name, storage_path, size_bytes, format, uploaded_at
		 FROM files WHERE id = ?`, fileID), fileID)
}

// GetByHash returns a file by content hash, or NotFound.
func (s *Store) GetByHash(ctx context.Context, hash string) (*File, error) {
	f, err := scanFile(s.db.QueryRow(ctx,
		`SELECT id, content_hash, original_name, storage_path, size_bytes, format, uploaded_at
		 FROM files WHERE content_hash = ?`, hash), 0)
	if serr.IsNotFound(err) {
		return nil, serr.NotFound("no file with hash %s", hash)
	}
	return f, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner, fileID int64) (*File, error) {
	var (
		f          File
		uploadedAt string
	)
	err := row.Scan(&f.ID, &f.ContentHash, &f.OriginalName, &f.StoragePath,
		&f.SizeBytes, &f.Format, &uploadedAt)
	if err == sql.ErrNoRows {
		return nil, serr.NotFound("file %d not found", fileID)
	}
	if err != nil {
		return nil, serr.Internal(err, "scan file row")
	}

	if f.UploadedAt, err = store.ParseTime(uploadedAt); err != nil {
		return nil, serr.Internal(err, "parse uploaded_at")
	}
	return &f, nil
}

// ReferenceCount returns the number of jobs pointing at the file,
// read outside any transaction. Delete recomputes this inside its own
// transaction before acting.
func (s *Store) ReferenceCount(ctx context.Context, fileID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE file_id = ?`, fileID).Scan(&n)
	if err != nil {
		return 0, serr.Internal(err, "count file references")
	}
	return n, nil
}

// ListFilter filters List output.
type ListFilter struct {
	Format string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// List returns files newest-first with optional filtering and pagination.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]File, error) {
	query := `SELECT id, content_hash, original_name, storage_path, size_bytes, format, uploaded_at
	          FROM files WHERE 1=1`
	var args []any

	if filter.Format != "" {
		query += ` AND format = ?`
		args = append(args, strings.ToLower(filter.Format))
	}
	if !filter.From.IsZero() {
		query += ` AND uploaded_at >= ?`
		args = append(args, store.FormatTime(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND uploaded_at <= ?`
		args = append(args, store.FormatTime(filter.To))
	}

	query += ` ORDER BY uploaded_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, serr.Internal(err, "list files")
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows, 0)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, serr.Internal(rows.Err(), "iterate files")
}

// VerifyIntegrity re-hashes the stored object and compares it with the
// recorded content hash.
func (s *Store) VerifyIntegrity(ctx context.Context, fileID int64) (bool, error) {
	f, err := s.Get(ctx, fileID)
	if err != nil {
		return false, err
	}

	obj, err := os.Open(f.StoragePath)
	if err != nil {
		return false, serr.Internal(err, "open stored object %s", f.StoragePath)
	}
	defer obj.Close()

	digest := sha256.New()
	buf := make([]byte, uploadChunkSize)
	for {
		select {
		case <-ctx.Done():
			return false, serr.Internal(ctx.Err(), "integrity check cancelled")
		default:
		}

		n, readErr := obj.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return false, serr.Internal(readErr, "read stored object")
		}
	}

	actual := hex.EncodeToString(digest.Sum(nil))
	if actual != f.ContentHash {
		s.log.Error("file integrity check failed",
			zap.Int64("file_id", fileID),
			zap.String("expected", f.ContentHash[:8]),
			zap.String("actual", actual[:8]))
		return false, nil
	}
	return true, nil
}
