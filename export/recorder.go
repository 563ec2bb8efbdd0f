package export

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/transcript"
)

// Log receives audit entries for completed exports. The transcript
// manager satisfies it.
type Log interface {
	RecordExport(ctx context.Context, id int64, version int, format, outputPath, by string) (*transcript.ExportRecord, error)
}

// Recorder renders a transcript, writes it to disk and records the
// export in the audit trail.
type Recorder struct {
	audit Log
	log   *zap.Logger
}

func NewRecorder(audit Log, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{audit: audit, log: log}
}

// Result is a finished export. RecordWarning is set when the rendered
// file was written but the audit entry failed; the export itself still
// succeeded.
type Result struct {
	Content       []byte
	Path          string
	Record        *transcript.ExportRecord
	RecordWarning string
}

// Export renders view into format f and writes it to outputPath,
// creating parent directories as needed. The rendered bytes are always
// part of the result, even when the audit write fails afterwards.
func (r *Recorder) Export(ctx context.Context, view *transcript.View, f Format, outputPath, by string, opts Options) (*Result, error) {
	content, err := Render(f, view, opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, serr.Internal(err, "create export directory")
	}
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return nil, serr.Internal(err, "write export file")
	}

	res := &Result{Content: content, Path: outputPath}
	rec, err := r.audit.RecordExport(ctx, view.ID, view.Version, string(f), outputPath, by)
	if err != nil {
		res.RecordWarning = err.Error()
		r.log.Warn("export finished but audit entry failed",
			zap.Int64("transcript_id", view.ID),
			zap.String("format", string(f)),
			zap.Error(err))
		return res, nil
	}
	res.Record = rec

	r.log.Info("transcript exported",
		zap.Int64("transcript_id", view.ID),
		zap.Int("version", view.Version),
		zap.String("format", string(f)),
		zap.String("path", outputPath))
	return res, nil
}
