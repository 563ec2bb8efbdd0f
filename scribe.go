package scribe

import (
	"go.uber.org/zap"

	"github.com/randalmurphal/scribe/config"
	"github.com/randalmurphal/scribe/export"
	"github.com/randalmurphal/scribe/filestore"
	"github.com/randalmurphal/scribe/jobs"
	"github.com/randalmurphal/scribe/logging"
	"github.com/randalmurphal/scribe/store"
	"github.com/randalmurphal/scribe/transcript"
)

// Store wires the subsystems around one database. All members share
// the same transaction manager, so cross-cutting operations like a
// forced file delete stay atomic across them.
type Store struct {
	DB          *store.DB
	Files       *filestore.Store
	Jobs        *jobs.Ledger
	Transcripts *transcript.Manager
	Exports     *export.Recorder

	log *zap.Logger
}

// Open validates the configuration, opens the database and constructs
// every subsystem. A nil logger disables logging.
func Open(dbPath string, cfg config.Storage, log *zap.Logger) (*Store, error) {
	log = logging.OrNop(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := store.Open(dbPath, store.Options{
		BusyTimeout: cfg.BusyTimeout,
		MaxRetries:  cfg.MaxWriteRetries,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	files, err := filestore.New(db, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	transcripts := transcript.New(db, log)
	return &Store{
		DB:          db,
		Files:       files,
		Jobs:        jobs.New(db, log),
		Transcripts: transcripts,
		Exports:     export.NewRecorder(transcripts, log),
		log:         log,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}
