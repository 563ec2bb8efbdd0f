package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/scribe/transcript"
)

type fakeAudit struct {
	calls []string
	fail  error
}

func (f *fakeAudit) RecordExport(_ context.Context, id int64, version int, format, outputPath, by string) (*transcript.ExportRecord, error) {
	f.calls = append(f.calls, format)
	if f.fail != nil {
		return nil, f.fail
	}
	return &transcript.ExportRecord{
		ExportID:     "exp-1",
		TranscriptID: id,
		Version:      version,
		Format:       format,
		OutputPath:   outputPath,
		ExportedBy:   by,
	}, nil
}

func TestRecorderWritesAndRecords(t *testing.T) {
	audit := &fakeAudit{}
	rec := NewRecorder(audit, nil)
	path := filepath.Join(t.TempDir(), "out", "a.srt")

	res, err := rec.Export(context.Background(), sampleView(), FormatSRT, path, "editor", Options{})
	require.NoError(t, err)

	require.Equal(t, path, res.Path)
	require.Empty(t, res.RecordWarning)
	require.NotNil(t, res.Record)
	require.Equal(t, []string{"srt"}, audit.calls)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, res.Content, onDisk)
}

func TestRecorderSurvivesAuditFailure(t *testing.T) {
	audit := &fakeAudit{fail: errors.New("audit store down")}
	rec := NewRecorder(audit, nil)
	path := filepath.Join(t.TempDir(), "a.txt")

	res, err := rec.Export(context.Background(), sampleView(), FormatTXT, path, "editor", Options{})
	require.NoError(t, err, "a failed audit entry does not fail the export")

	require.NotEmpty(t, res.Content)
	require.Contains(t, res.RecordWarning, "audit store down")
	require.Nil(t, res.Record)

	_, err = os.Stat(path)
	require.NoError(t, err, "the rendered file stays on disk")
}

func TestRecorderRejectsUnrenderable(t *testing.T) {
	rec := NewRecorder(&fakeAudit{}, nil)
	path := filepath.Join(t.TempDir(), "a.srt")

	_, err := rec.Export(context.Background(), nil, FormatSRT, path, "editor", Options{})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "nothing written when rendering fails")
}
