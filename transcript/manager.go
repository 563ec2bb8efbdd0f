package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

// Manager owns transcript rows, their version chains and the search
// index entries derived from them.
type Manager struct {
	db  *store.DB
	log *zap.Logger
}

func New(db *store.DB, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{db: db, log: log}
}

// Save stores the engine output for a completed job as a new
// transcript with version 1. The flowing text is stored independently
// of the segments; an empty text falls back to the segment
// concatenation. A job carries at most one transcript; saving against
// the same job twice is a conflict.
func (m *Manager) Save(ctx context.Context, jobID, lang, text string, segments []Segment) (*View, error) {
	if err := ValidateSegments(segments); err != nil {
		return nil, err
	}
	normalized, err := NormalizeLanguage(lang)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(segments)
	if err != nil {
		return nil, serr.Internal(err, "encode segments")
	}
	if text == "" {
		text = JoinText(segments)
	}

	var id int64
	err = m.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var status string
		err := tx.QueryRow(`SELECT status FROM jobs WHERE job_id = ?`, jobID).Scan(&status)
		if err == sql.ErrNoRows {
			return serr.NotFound("job %s", jobID)
		}
		if err != nil {
			return serr.Internal(err, "read job %s", jobID)
		}
		if status != "completed" {
			return serr.Integrity("job %s is %s, only completed jobs have transcripts", jobID, status)
		}

		now := store.Now()
		res, err := tx.Exec(
			`INSERT INTO transcripts (job_id, language, text, segments, segment_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			jobID, normalized, text, string(blob), len(segments), now)
		if err != nil {
			if store.IsUniqueConstraint(err) {
				return serr.Conflict("job %s already has a transcript", jobID)
			}
			return serr.Internal(err, "insert transcript")
		}
		if id, err = res.LastInsertId(); err != nil {
			return serr.Internal(err, "insert transcript")
		}

		_, err = tx.Exec(
			`INSERT INTO versions (transcript_id, version_number, text, segments, segment_count,
			                       created_at, created_by, change_note, is_current)
			 VALUES (?, 1, ?, ?, ?, ?, 'system', 'Initial transcription', 1)`,
			id, text, string(blob), len(segments), now)
		if err != nil {
			return serr.Internal(err, "insert version")
		}

		_, err = tx.Exec(`INSERT INTO transcript_fts (rowid, text, language) VALUES (?, ?, ?)`,
			id, text, normalized)
		if err != nil {
			return serr.Internal(err, "index transcript")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("transcript saved",
		zap.Int64("transcript_id", id),
		zap.String("job_id", jobID),
		zap.Int("segments", len(segments)))
	return m.Get(ctx, id, 0)
}

// Get returns a transcript at a specific version, or at the current
// version when version is 0.
func (m *Manager) Get(ctx context.Context, id int64, version int) (*View, error) {
	if version < 0 {
		return nil, serr.Validation("version must not be negative, got %d", version)
	}

	query := `SELECT t.id, t.job_id, t.language, v.version_number, v.text,
	                 v.segments, v.segment_count, v.is_current, v.created_at
	          FROM transcripts t
	          JOIN versions v ON v.transcript_id = t.id`
	args := []any{id}
	if version == 0 {
		query += ` WHERE t.id = ? AND v.is_current = 1`
	} else {
		query += ` WHERE t.id = ? AND v.version_number = ?`
		args = append(args, version)
	}

	view, err := scanView(m.db.QueryRow(ctx, query, args...))
	if err == sql.ErrNoRows {
		if version == 0 {
			return nil, serr.NotFound("transcript %d", id)
		}
		return nil, serr.NotFound("transcript %d version %d", id, version)
	}
	if err != nil {
		return nil, serr.Internal(err, "read transcript %d", id)
	}
	return view, nil
}

// ByJob returns the current transcript for a job.
func (m *Manager) ByJob(ctx context.Context, jobID string) (*View, error) {
	var id int64
	err := m.db.QueryRow(ctx, `SELECT id FROM transcripts WHERE job_id = ?`, jobID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, serr.NotFound("no transcript for job %s", jobID)
	}
	if err != nil {
		return nil, serr.Internal(err, "read transcript for job %s", jobID)
	}
	return m.Get(ctx, id, 0)
}

// Update appends a new version with the edited text and segments and
// marks it current. The previous version stays in the chain untouched.
// An empty text falls back to the segment concatenation.
func (m *Manager) Update(ctx context.Context, id int64, text string, segments []Segment, changedBy, note string) (*View, error) {
	if err := ValidateSegments(segments); err != nil {
		return nil, err
	}
	if changedBy == "" {
		changedBy = "system"
	}
	blob, err := json.Marshal(segments)
	if err != nil {
		return nil, serr.Internal(err, "encode segments")
	}
	if text == "" {
		text = JoinText(segments)
	}

	var next int
	err = m.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM transcripts WHERE id = ?`, id).Scan(&exists); err != nil {
			return serr.Internal(err, "read transcript %d", id)
		}
		if exists == 0 {
			return serr.NotFound("transcript %d", id)
		}

		if _, err := tx.Exec(
			`UPDATE versions SET is_current = 0 WHERE transcript_id = ? AND is_current = 1`, id); err != nil {
			return serr.Internal(err, "retire current version")
		}

		if err := tx.QueryRow(
			`SELECT COALESCE(MAX(version_number), 0) + 1 FROM versions WHERE transcript_id = ?`,
			id).Scan(&next); err != nil {
			return serr.Internal(err, "next version number")
		}

		now := store.Now()
		if _, err := tx.Exec(
			`INSERT INTO versions (transcript_id, version_number, text, segments, segment_count,
			                       created_at, created_by, change_note, is_current)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			id, next, text, string(blob), len(segments), now, changedBy, note); err != nil {
			return serr.Internal(err, "insert version")
		}

		if _, err := tx.Exec(
			`UPDATE transcripts SET text = ?, segments = ?, segment_count = ? WHERE id = ?`,
			text, string(blob), len(segments), id); err != nil {
			return serr.Internal(err, "refresh transcript")
		}

		if _, err := tx.Exec(
			`UPDATE transcript_fts SET text = ? WHERE rowid = ?`, text, id); err != nil {
			return serr.Internal(err, "reindex transcript")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("transcript updated",
		zap.Int64("transcript_id", id),
		zap.Int("version", next),
		zap.String("by", changedBy))
	return m.Get(ctx, id, next)
}

// Rollback restores the content of an earlier version by appending it
// as a new current version. The chain never rewinds. The rollback
// provenance is appended to the caller's note.
func (m *Manager) Rollback(ctx context.Context, id int64, toVersion int, changedBy, note string) (*View, error) {
	if toVersion < 1 {
		return nil, serr.Validation("rollback target must be a version number, got %d", toVersion)
	}
	old, err := m.Get(ctx, id, toVersion)
	if err != nil {
		return nil, err
	}
	if old.IsCurrent {
		return nil, serr.Validation("version %d is already current", toVersion)
	}

	provenance := fmt.Sprintf("Rolled back to version %d", toVersion)
	if note != "" {
		provenance = note + " (" + provenance + ")"
	}
	return m.Update(ctx, id, old.Text, old.Segments, changedBy, provenance)
}

// Versions lists a transcript's history, newest first.
func (m *Manager) Versions(ctx context.Context, id int64) ([]VersionInfo, error) {
	if err := m.mustExist(ctx, id); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(ctx,
		`SELECT version_number, segment_count, LENGTH(text), created_at, created_by,
		        COALESCE(change_note, ''), is_current
		 FROM versions WHERE transcript_id = ? ORDER BY version_number DESC`, id)
	if err != nil {
		return nil, serr.Internal(err, "list versions")
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var (
			v       VersionInfo
			created string
			current int
		)
		if err := rows.Scan(&v.Number, &v.SegmentCount, &v.TextLength,
			&created, &v.CreatedBy, &v.ChangeNote, &current); err != nil {
			return nil, serr.Internal(err, "scan version")
		}
		if v.CreatedAt, err = store.ParseTime(created); err != nil {
			return nil, serr.Internal(err, "scan version")
		}
		v.IsCurrent = current == 1
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "list versions")
	}
	return out, nil
}

// PruneVersions trims the history to its newest keepCount versions.
// The current version always survives, even when it is older than the
// cut, so pruning can never change what Get returns.
func (m *Manager) PruneVersions(ctx context.Context, id int64, keepCount int) (int, error) {
	if keepCount < 1 {
		return 0, serr.Validation("must keep at least one version, got %d", keepCount)
	}

	var removed int
	err := m.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM transcripts WHERE id = ?`, id).Scan(&exists); err != nil {
			return serr.Internal(err, "read transcript %d", id)
		}
		if exists == 0 {
			return serr.NotFound("transcript %d", id)
		}

		res, err := tx.Exec(
			`DELETE FROM versions
			 WHERE transcript_id = ? AND is_current = 0 AND version_number NOT IN (
			     SELECT version_number FROM versions WHERE transcript_id = ?
			     ORDER BY version_number DESC LIMIT ?)`,
			id, id, keepCount)
		if err != nil {
			return serr.Internal(err, "prune versions")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return serr.Internal(err, "prune versions")
		}
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		m.log.Info("versions pruned",
			zap.Int64("transcript_id", id),
			zap.Int("removed", removed),
			zap.Int("kept", keepCount))
	}
	return removed, nil
}

// Delete removes a transcript, its versions, its export records and
// its search index entry in one transaction.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	return m.db.RunAtomic(ctx, func(tx *store.Tx) error {
		if _, err := tx.Exec(`DELETE FROM transcript_fts WHERE rowid = ?`, id); err != nil {
			return serr.Internal(err, "deindex transcript %d", id)
		}
		res, err := tx.Exec(`DELETE FROM transcripts WHERE id = ?`, id)
		if err != nil {
			return serr.Internal(err, "delete transcript %d", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return serr.Internal(err, "delete transcript %d", id)
		}
		if n == 0 {
			return serr.NotFound("transcript %d", id)
		}
		return nil
	})
}

// RecordExport writes an audit entry for a completed export and
// returns it. Version 0 means the export tracked the current version
// rather than pinning one.
func (m *Manager) RecordExport(ctx context.Context, id int64, version int, format, outputPath, by string) (*ExportRecord, error) {
	if err := m.mustExist(ctx, id); err != nil {
		return nil, err
	}
	if by == "" {
		by = "system"
	}

	exportID, err := gonanoid.New()
	if err != nil {
		return nil, serr.Internal(err, "generate export id")
	}

	rec := &ExportRecord{
		ExportID:     exportID,
		TranscriptID: id,
		Version:      version,
		Format:       format,
		OutputPath:   outputPath,
		ExportedBy:   by,
	}
	now := store.Now()

	var versionArg any
	if version > 0 {
		versionArg = version
	}
	err = m.db.RunAtomic(ctx, func(tx *store.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO exports (export_id, transcript_id, version_number, format,
			                      output_path, exported_at, exported_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			exportID, id, versionArg, format, outputPath, now, by)
		if err != nil {
			return serr.Internal(err, "record export")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec.ExportedAt, _ = store.ParseTime(now)
	return rec, nil
}

// Exports lists a transcript's export history, newest first.
func (m *Manager) Exports(ctx context.Context, id int64) ([]ExportRecord, error) {
	if err := m.mustExist(ctx, id); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(ctx,
		`SELECT export_id, transcript_id, COALESCE(version_number, 0), format,
		        output_path, exported_at, exported_by
		 FROM exports WHERE transcript_id = ?
		 ORDER BY exported_at DESC, export_id`, id)
	if err != nil {
		return nil, serr.Internal(err, "list exports")
	}
	defer rows.Close()

	var out []ExportRecord
	for rows.Next() {
		var (
			rec      ExportRecord
			exported string
		)
		if err := rows.Scan(&rec.ExportID, &rec.TranscriptID, &rec.Version,
			&rec.Format, &rec.OutputPath, &exported, &rec.ExportedBy); err != nil {
			return nil, serr.Internal(err, "scan export")
		}
		if rec.ExportedAt, err = store.ParseTime(exported); err != nil {
			return nil, serr.Internal(err, "scan export")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "list exports")
	}
	return out, nil
}

// Stats summarizes the transcript store.
type Stats struct {
	Transcripts   int
	Versions      int
	AvgVersions   float64
	TotalSegments int // across current versions
	ByLanguage    map[string]int
}

func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByLanguage: make(map[string]int)}

	err := m.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(segment_count), 0) FROM transcripts`).
		Scan(&st.Transcripts, &st.TotalSegments)
	if err != nil {
		return nil, serr.Internal(err, "read transcript stats")
	}
	if err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM versions`).Scan(&st.Versions); err != nil {
		return nil, serr.Internal(err, "read transcript stats")
	}
	if st.Transcripts > 0 {
		st.AvgVersions = float64(st.Versions) / float64(st.Transcripts)
	}

	rows, err := m.db.Query(ctx, `SELECT language, COUNT(*) FROM transcripts GROUP BY language`)
	if err != nil {
		return nil, serr.Internal(err, "read transcript stats")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			lang  string
			count int
		)
		if err := rows.Scan(&lang, &count); err != nil {
			return nil, serr.Internal(err, "read transcript stats")
		}
		st.ByLanguage[lang] = count
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "read transcript stats")
	}
	return st, nil
}

func (m *Manager) mustExist(ctx context.Context, id int64) error {
	var exists int
	if err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM transcripts WHERE id = ?`, id).Scan(&exists); err != nil {
		return serr.Internal(err, "read transcript %d", id)
	}
	if exists == 0 {
		return serr.NotFound("transcript %d", id)
	}
	return nil
}

func scanView(row *sql.Row) (*View, error) {
	var (
		view    View
		blob    string
		current int
		created string
	)
	err := row.Scan(&view.ID, &view.JobID, &view.Language, &view.Version,
		&view.Text, &blob, &view.SegmentCount, &current, &created)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &view.Segments); err != nil {
		return nil, err
	}
	if view.CreatedAt, err = store.ParseTime(created); err != nil {
		return nil, err
	}
	view.IsCurrent = current == 1
	return &view, nil
}
