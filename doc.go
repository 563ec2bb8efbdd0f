// Package scribe stores transcription results with full version
// history, deduplicated audio storage and synchronous full-text
// search.
//
// The package is organized into subpackages by domain:
//
//   - store: SQLite-backed transaction manager and schema
//   - filestore: content-addressed audio file storage with quotas
//   - jobs: transcription job ledger and status machine
//   - transcript: versioned transcripts, diffing and search
//   - export: rendering to srt, vtt, json, txt and csv
//   - config: storage configuration from YAML and environment
//   - logging: zap logger construction
//   - errors: the shared error taxonomy
//   - testutil: test helpers and fixtures
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.BaseDir = "/var/lib/scribe/uploads"
//
//	s, err := scribe.Open("/var/lib/scribe/scribe.db", cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	fileID, _, err := s.Files.Upload(ctx, audio, "meeting.wav")
//	job, err := s.Jobs.Create(ctx, fileID, jobs.Params{ModelSize: "base"})
package scribe
