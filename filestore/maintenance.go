package filestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

// Delete removes a file row and its physical object together. When the
// file is still referenced by jobs the call fails with a conflict unless
// force is set; with force the delete cascades to the referencing jobs
// and their transcripts. The reference count is recomputed inside the
// delete transaction, never from a cached value.
func (s *Store) Delete(ctx context.Context, fileID int64, force bool) error {
	err := s.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var storagePath string
		row := tx.QueryRow(`SELECT storage_path FROM files WHERE id = ?`, fileID)
		if err := row.Scan(&storagePath); err == sql.ErrNoRows {
			return serr.NotFound("file %d not found", fileID)
		} else if err != nil {
			return serr.Internal(err, "read file row")
		}

		var refs int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM jobs WHERE file_id = ?`, fileID).Scan(&refs); err != nil {
			return serr.Internal(err, "count file references")
		}
		if refs > 0 && !force {
			return serr.Conflict("file %d is referenced by %d job(s)", fileID, refs)
		}

		// The cascade will take transcripts with it; their search index
		// rows must go in the same transaction.
		if _, err := tx.Exec(
			`DELETE FROM transcript_fts WHERE rowid IN (
				SELECT t.id FROM transcripts t
				JOIN jobs j ON j.job_id = t.job_id
				WHERE j.file_id = ?)`, fileID); err != nil {
			return serr.Internal(err, "purge search index")
		}

		if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, fileID); err != nil {
			return serr.Internal(err, "delete file row")
		}

		return s.removeObject(tx, storagePath)
	})
	if err != nil {
		return err
	}

	s.log.Info("file deleted", zap.Int64("file_id", fileID), zap.Bool("force", force))
	return nil
}

// removeObject unlinks a physical object in step with the surrounding
// transaction: the object is parked in the temp dir until commit, and
// restored if the transaction rolls back.
func (s *Store) removeObject(tx *store.Tx, storagePath string) error {
	if _, err := os.Stat(storagePath); os.IsNotExist(err) {
		s.log.Warn("stored object already missing", zap.String("path", storagePath))
		return nil
	}

	trash := filepath.Join(s.cfg.TempDir,
		fmt.Sprintf("trash-%d-%s", time.Now().UnixNano(), filepath.Base(storagePath)))
	if err := os.Rename(storagePath, trash); err != nil {
		return serr.Internal(err, "detach stored object")
	}

	tx.OnRollback(func() {
		if err := os.Rename(trash, storagePath); err != nil {
			s.log.Error("failed to restore object after rollback",
				zap.String("path", storagePath), zap.Error(err))
		}
	})
	tx.OnCommit(func() { os.Remove(trash) })
	return nil
}

// CleanupReport summarizes a maintenance pass.
type CleanupReport struct {
	Found      int
	Processed  int
	Bytes      int64
	BytesHuman string
	Errors     []error
}

// CleanupOrphaned deletes files with no referencing jobs that are at
// least minAgeDays old. Candidates are gathered from a snapshot, then
// each delete re-checks the reference count and age inside its own
// transaction, so the pass is safe to run next to live uploads.
func (s *Store) CleanupOrphaned(ctx context.Context, minAgeDays int) (*CleanupReport, error) {
	if minAgeDays < 0 {
		return nil, serr.Validation("minAgeDays must not be negative")
	}
	cutoff := store.FormatTime(time.Now().AddDate(0, 0, -minAgeDays))

	rows, err := s.db.Query(ctx,
		`SELECT f.id, f.size_bytes FROM files f
		 LEFT JOIN jobs j ON j.file_id = f.id
		 WHERE j.file_id IS NULL AND f.uploaded_at < ?`, cutoff)
	if err != nil {
		return nil, serr.Internal(err, "find orphaned files")
	}

	type candidate struct {
		id   int64
		size int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.size); err != nil {
			rows.Close()
			return nil, serr.Internal(err, "scan orphan candidate")
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "iterate orphan candidates")
	}

	report := &CleanupReport{Found: len(candidates)}
	for _, c := range candidates {
		err := s.db.RunAtomic(ctx, func(tx *store.Tx) error {
			var storagePath string
			row := tx.QueryRow(
				`SELECT storage_path FROM files WHERE id = ? AND uploaded_at < ?`, c.id, cutoff)
			if err := row.Scan(&storagePath); err == sql.ErrNoRows {
				return nil // deleted since the snapshot
			} else if err != nil {
				return serr.Internal(err, "re-read orphan")
			}

			// The snapshot may be stale: a job created since then makes
			// this file an orphan no longer.
			var refs int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM jobs WHERE file_id = ?`, c.id).Scan(&refs); err != nil {
				return serr.Internal(err, "recount references")
			}
			if refs > 0 {
				return nil
			}

			if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, c.id); err != nil {
				return serr.Internal(err, "delete orphan row")
			}

			if err := s.removeObject(tx, storagePath); err != nil {
				return err
			}

			report.Processed++
			report.Bytes += c.size
			return nil
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("file %d: %w", c.id, err))
		}
	}

	report.BytesHuman = humanize.Bytes(uint64(report.Bytes))
	s.log.Info("orphan cleanup finished",
		zap.Int("found", report.Found),
		zap.Int("deleted", report.Processed),
		zap.String("freed", report.BytesHuman))
	return report, nil
}

// Archive moves files older than ageDays into the archive directory and
// repoints their storage paths. Each file moves in its own transaction
// with a rollback compensation, so a failed move leaves the row and the
// object consistent.
func (s *Store) Archive(ctx context.Context, ageDays int) (*CleanupReport, error) {
	if ageDays < 0 {
		return nil, serr.Validation("ageDays must not be negative")
	}
	cutoff := store.FormatTime(time.Now().AddDate(0, 0, -ageDays))

	rows, err := s.db.Query(ctx,
		`SELECT id, size_bytes FROM files
		 WHERE uploaded_at < ? AND storage_path NOT LIKE ?`,
		cutoff, filepath.Join(s.cfg.ArchiveDir, "%"))
	if err != nil {
		return nil, serr.Internal(err, "find archivable files")
	}

	var ids []int64
	report := &CleanupReport{}
	sizes := map[int64]int64{}
	for rows.Next() {
		var id, size int64
		if err := rows.Scan(&id, &size); err != nil {
			rows.Close()
			return nil, serr.Internal(err, "scan archive candidate")
		}
		ids = append(ids, id)
		sizes[id] = size
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "iterate archive candidates")
	}
	report.Found = len(ids)

	for _, id := range ids {
		err := s.db.RunAtomic(ctx, func(tx *store.Tx) error {
			var storagePath string
			row := tx.QueryRow(`SELECT storage_path FROM files WHERE id = ?`, id)
			if err := row.Scan(&storagePath); err == sql.ErrNoRows {
				return nil
			} else if err != nil {
				return serr.Internal(err, "re-read archive candidate")
			}

			if _, err := os.Stat(storagePath); os.IsNotExist(err) {
				s.log.Warn("stored object missing, skipping archive",
					zap.String("path", storagePath))
				return nil
			}

			archivePath := filepath.Join(s.cfg.ArchiveDir, filepath.Base(storagePath))
			if err := os.Rename(storagePath, archivePath); err != nil {
				return serr.Internal(err, "move object to archive")
			}
			tx.OnRollback(func() {
				if err := os.Rename(archivePath, storagePath); err != nil {
					s.log.Error("failed to restore object after rollback",
						zap.String("path", storagePath), zap.Error(err))
				}
			})

			if _, err := tx.Exec(
				`UPDATE files SET storage_path = ? WHERE id = ?`, archivePath, id); err != nil {
				return serr.Internal(err, "update storage path")
			}

			report.Processed++
			report.Bytes += sizes[id]
			return nil
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("file %d: %w", id, err))
		}
	}

	report.BytesHuman = humanize.Bytes(uint64(report.Bytes))
	s.log.Info("archive pass finished",
		zap.Int("found", report.Found),
		zap.Int("archived", report.Processed),
		zap.String("moved", report.BytesHuman))
	return report, nil
}
