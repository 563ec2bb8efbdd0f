package store

// Schema notes:
//
//   - Versioning has no triggers. Version rows are written by explicit
//     multi-step transactions so the one-current invariant stays
//     enforceable independent of the backend.
//   - The partial unique index on versions(transcript_id) backs the
//     exactly-one-current invariant at the storage level.
//   - transcript_fts rows use the transcript id as rowid and are written
//     inside the same transaction as the denormalized transcript columns.
const schema = `
CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash  TEXT    NOT NULL UNIQUE,
	original_name TEXT    NOT NULL,
	storage_path  TEXT    NOT NULL,
	size_bytes    INTEGER NOT NULL,
	format        TEXT    NOT NULL,
	uploaded_at   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id                  TEXT PRIMARY KEY,
	file_id                 INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	model_size              TEXT    NOT NULL,
	task_type               TEXT    NOT NULL DEFAULT 'transcribe',
	language_hint           TEXT,
	compute_type            TEXT,
	device                  TEXT,
	beam_size               INTEGER NOT NULL DEFAULT 5,
	status                  TEXT    NOT NULL DEFAULT 'pending',
	created_at              TEXT    NOT NULL,
	updated_at              TEXT    NOT NULL,
	started_at              TEXT,
	completed_at            TEXT,
	duration_seconds        REAL,
	processing_time_seconds REAL,
	error_message           TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_file   ON jobs(file_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);

CREATE TABLE IF NOT EXISTS transcripts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        TEXT    NOT NULL UNIQUE REFERENCES jobs(job_id) ON DELETE CASCADE,
	language      TEXT    NOT NULL,
	text          TEXT    NOT NULL,
	segments      TEXT    NOT NULL,
	segment_count INTEGER NOT NULL,
	created_at    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	version_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	transcript_id  INTEGER NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	version_number INTEGER NOT NULL,
	text           TEXT    NOT NULL,
	segments       TEXT    NOT NULL,
	segment_count  INTEGER NOT NULL,
	created_at     TEXT    NOT NULL,
	created_by     TEXT    NOT NULL DEFAULT 'system',
	change_note    TEXT,
	is_current     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (transcript_id, version_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_one_current
	ON versions(transcript_id) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS exports (
	export_id      TEXT PRIMARY KEY,
	transcript_id  INTEGER NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
	version_number INTEGER,
	format         TEXT NOT NULL,
	output_path    TEXT NOT NULL,
	exported_at    TEXT NOT NULL,
	exported_by    TEXT NOT NULL DEFAULT 'system'
);

CREATE INDEX IF NOT EXISTS idx_exports_transcript ON exports(transcript_id, exported_at);

CREATE VIRTUAL TABLE IF NOT EXISTS transcript_fts USING fts5(
	text,
	language UNINDEXED
);
`
