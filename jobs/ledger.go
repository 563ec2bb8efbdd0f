package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

// Ledger records jobs and enforces their status machine.
type Ledger struct {
	db  *store.DB
	log *zap.Logger
}

func New(db *store.DB, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, log: log}
}

// Create registers a new pending job for a stored file. Zero-valued
// params are filled with engine defaults before validation.
func (l *Ledger) Create(ctx context.Context, fileID int64, p Params) (*Job, error) {
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}

	job := &Job{
		ID:     uuid.NewString(),
		FileID: fileID,
		Params: p,
		Status: StatusPending,
	}

	err := l.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM files WHERE id = ?`, fileID).Scan(&exists); err != nil {
			return serr.Internal(err, "check file %d", fileID)
		}
		if exists == 0 {
			return serr.NotFound("file %d", fileID)
		}

		now := store.Now()
		_, err := tx.Exec(
			`INSERT INTO jobs (job_id, file_id, model_size, task_type, language_hint,
			                   compute_type, device, beam_size, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, fileID, p.ModelSize, p.TaskType, nullIfEmpty(p.Language),
			nullIfEmpty(p.ComputeType), nullIfEmpty(p.Device), p.BeamSize,
			string(StatusPending), now, now)
		if err != nil {
			return serr.Internal(err, "insert job")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("job created",
		zap.String("job_id", job.ID),
		zap.Int64("file_id", fileID),
		zap.String("model", p.ModelSize))
	return l.Get(ctx, job.ID)
}

// StatusOption attaches extra fields to a status update.
type StatusOption func(*statusUpdate)

type statusUpdate struct {
	errorMessage *string
	duration     *float64
	processing   *float64
}

// WithError records the failure message on the job.
func WithError(msg string) StatusOption {
	return func(u *statusUpdate) { u.errorMessage = &msg }
}

// WithDuration records the audio length in seconds.
func WithDuration(seconds float64) StatusOption {
	return func(u *statusUpdate) { u.duration = &seconds }
}

// WithProcessingTime records the wall-clock transcription time in seconds.
func WithProcessingTime(seconds float64) StatusOption {
	return func(u *statusUpdate) { u.processing = &seconds }
}

// UpdateStatus moves a job to a new state, rejecting transitions the
// status machine does not allow. Moving to processing stamps
// started_at; any terminal state stamps completed_at.
func (l *Ledger) UpdateStatus(ctx context.Context, jobID string, to Status, opts ...StatusOption) error {
	if !to.Valid() {
		return serr.Validation("unknown status %q", to)
	}
	var update statusUpdate
	for _, opt := range opts {
		opt(&update)
	}

	var from Status
	err := l.db.RunAtomic(ctx, func(tx *store.Tx) error {
		var raw string
		err := tx.QueryRow(`SELECT status FROM jobs WHERE job_id = ?`, jobID).Scan(&raw)
		if err == sql.ErrNoRows {
			return serr.NotFound("job %s", jobID)
		}
		if err != nil {
			return serr.Internal(err, "read job %s", jobID)
		}

		from = Status(raw)
		if !from.CanTransition(to) {
			return serr.Integrity("job %s cannot move from %s to %s", jobID, from, to)
		}

		now := store.Now()
		sets := []string{"status = ?", "updated_at = ?"}
		args := []any{string(to), now}
		if to == StatusProcessing {
			sets = append(sets, "started_at = ?")
			args = append(args, now)
		}
		if to.Terminal() {
			sets = append(sets, "completed_at = ?")
			args = append(args, now)
		}
		if update.errorMessage != nil {
			sets = append(sets, "error_message = ?")
			args = append(args, *update.errorMessage)
		}
		if update.duration != nil {
			sets = append(sets, "duration_seconds = ?")
			args = append(args, *update.duration)
		}
		if update.processing != nil {
			sets = append(sets, "processing_time_seconds = ?")
			args = append(args, *update.processing)
		}
		args = append(args, jobID)

		_, err = tx.Exec(fmt.Sprintf(`UPDATE jobs SET %s WHERE job_id = ?`,
			strings.Join(sets, ", ")), args...)
		if err != nil {
			return serr.Internal(err, "update job %s", jobID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.Info("job status changed",
		zap.String("job_id", jobID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return nil
}

// Retry creates a fresh pending job with the same file and parameters
// as a failed one. The failed job keeps its record; only failed jobs
// may be retried.
func (l *Ledger) Retry(ctx context.Context, jobID string) (*Job, error) {
	failed, err := l.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if failed.Status != StatusFailed {
		return nil, serr.Integrity("job %s is %s, only failed jobs can be retried", jobID, failed.Status)
	}

	replacement, err := l.Create(ctx, failed.FileID, failed.Params)
	if err != nil {
		return nil, err
	}
	l.log.Info("job retried",
		zap.String("failed_job", jobID),
		zap.String("new_job", replacement.ID))
	return replacement, nil
}

const jobColumns = `job_id, file_id, model_size, task_type, language_hint,
	compute_type, device, beam_size, status, created_at, updated_at,
	started_at, completed_at, duration_seconds, processing_time_seconds, error_message`

// Get returns a job by its id.
func (l *Ledger) Get(ctx context.Context, jobID string) (*Job, error) {
	row := l.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, serr.NotFound("job %s", jobID)
	}
	if err != nil {
		return nil, serr.Internal(err, "read job %s", jobID)
	}
	return job, nil
}

// ListByStatus returns jobs in a given state, newest first.
func (l *Ledger) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Job, error) {
	if !status.Valid() {
		return nil, serr.Validation("unknown status %q", status)
	}
	return l.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ?
		ORDER BY created_at DESC, job_id LIMIT ? OFFSET ?`,
		string(status), normalizeLimit(limit), offset)
}

// Recent returns the most recently created jobs across all states.
func (l *Ledger) Recent(ctx context.Context, limit, offset int) ([]Job, error) {
	return l.list(ctx, `SELECT `+jobColumns+` FROM jobs
		ORDER BY created_at DESC, job_id LIMIT ? OFFSET ?`,
		normalizeLimit(limit), offset)
}

// ListByFile returns all jobs recorded against one file, newest first.
func (l *Ledger) ListByFile(ctx context.Context, fileID int64) ([]Job, error) {
	return l.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE file_id = ?
		ORDER BY created_at DESC, job_id`, fileID)
}

func (l *Ledger) list(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, serr.Internal(err, "list jobs")
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, serr.Internal(err, "scan job")
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "list jobs")
	}
	return out, nil
}

// Delete removes a job and everything hanging off it, including the
// search index rows for its transcript.
func (l *Ledger) Delete(ctx context.Context, jobID string) error {
	return l.db.RunAtomic(ctx, func(tx *store.Tx) error {
		_, err := tx.Exec(`DELETE FROM transcript_fts WHERE rowid IN
			(SELECT id FROM transcripts WHERE job_id = ?)`, jobID)
		if err != nil {
			return serr.Internal(err, "purge search index for job %s", jobID)
		}

		res, err := tx.Exec(`DELETE FROM jobs WHERE job_id = ?`, jobID)
		if err != nil {
			return serr.Internal(err, "delete job %s", jobID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return serr.Internal(err, "delete job %s", jobID)
		}
		if n == 0 {
			return serr.NotFound("job %s", jobID)
		}
		return nil
	})
}

// CleanupOld deletes terminal jobs created before the age cutoff and
// returns how many were removed. Pending and processing jobs are never
// touched.
func (l *Ledger) CleanupOld(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, serr.Validation("age must not be negative, got %d days", olderThanDays)
	}
	cutoff := store.FormatTime(time.Now().AddDate(0, 0, -olderThanDays))

	var removed int
	err := l.db.RunAtomic(ctx, func(tx *store.Tx) error {
		const terminal = `('completed', 'failed', 'cancelled')`

		_, err := tx.Exec(`DELETE FROM transcript_fts WHERE rowid IN
			(SELECT t.id FROM transcripts t
			 JOIN jobs j ON j.job_id = t.job_id
			 WHERE j.status IN `+terminal+` AND j.created_at < ?)`, cutoff)
		if err != nil {
			return serr.Internal(err, "purge search index")
		}

		res, err := tx.Exec(`DELETE FROM jobs
			WHERE status IN `+terminal+` AND created_at < ?`, cutoff)
		if err != nil {
			return serr.Internal(err, "delete old jobs")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return serr.Internal(err, "delete old jobs")
		}
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		l.log.Info("old jobs removed", zap.Int("count", removed), zap.Int("age_days", olderThanDays))
	}
	return removed, nil
}

// Stats summarizes the ledger.
type Stats struct {
	Total         int
	ByStatus      map[Status]int
	AvgProcessing float64 // mean processing seconds across completed jobs
}

func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: make(map[Status]int)}

	rows, err := l.db.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, serr.Internal(err, "read job stats")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, serr.Internal(err, "read job stats")
		}
		st.ByStatus[Status(status)] = count
		st.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "read job stats")
	}

	err = l.db.QueryRow(ctx, `SELECT COALESCE(AVG(processing_time_seconds), 0)
		FROM jobs WHERE status = 'completed'`).Scan(&st.AvgProcessing)
	if err != nil {
		return nil, serr.Internal(err, "read job stats")
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                    Job
		language, compute, dev sql.NullString
		created, updated       string
		started, completed     sql.NullString
		duration, processing   sql.NullFloat64
		errMsg                 sql.NullString
	)
	err := row.Scan(&job.ID, &job.FileID, &job.ModelSize, &job.TaskType,
		&language, &compute, &dev, &job.BeamSize, (*string)(&job.Status),
		&created, &updated, &started, &completed, &duration, &processing, &errMsg)
	if err != nil {
		return nil, err
	}

	job.Language = language.String
	job.ComputeType = compute.String
	job.Device = dev.String
	job.ErrorMessage = errMsg.String

	if job.CreatedAt, err = store.ParseTime(created); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = store.ParseTime(updated); err != nil {
		return nil, err
	}
	if started.Valid {
		t, err := store.ParseTime(started.String)
		if err != nil {
			return nil, err
		}
		job.StartedAt = &t
	}
	if completed.Valid {
		t, err := store.ParseTime(completed.String)
		if err != nil {
			return nil, err
		}
		job.CompletedAt = &t
	}
	if duration.Valid {
		job.Duration = &duration.Float64
	}
	if processing.Valid {
		job.Processing = &processing.Float64
	}
	return &job, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
