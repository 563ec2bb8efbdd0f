package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/randalmurphal/scribe/config"
	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

func newTestStore(t *testing.T) (*Store, *store.DB, config.Storage) {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = filepath.Join(root, "uploads")
	cfg.ArchiveDir = filepath.Join(root, "archive")
	cfg.TempDir = filepath.Join(root, "temp")
	cfg.MinFileSize = 4
	cfg.MaxFileSize = 1 << 20

	db, err := store.Open(filepath.Join(root, "scribe.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fs, err := New(db, cfg, zap.NewNop())
	require.NoError(t, err)

	return fs, db, cfg
}

func addJob(t *testing.T, db *store.DB, jobID string, fileID int64) {
	t.Helper()

	err := db.RunAtomic(context.Background(), func(tx *store.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO jobs (job_id, file_id, model_size, status, created_at, updated_at)
			 VALUES (?, ?, 'base', 'pending', ?, ?)`,
			jobID, fileID, store.Now(), store.Now())
		return err
	})
	require.NoError(t, err)
}

func storedObjects(t *testing.T, dir string) []string {
	t.Helper()

	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	require.NoError(t, err)
	return paths
}

func TestUploadDeduplicates(t *testing.T) {
	fs, _, cfg := newTestStore(t)
	ctx := context.Background()

	payload := []byte("ten bytes!")

	id1, isNew, err := fs.Upload(ctx, bytes.NewReader(payload), "first.wav")
	require.NoError(t, err)
	require.True(t, isNew)

	id2, isNew, err := fs.Upload(ctx, bytes.NewReader(payload), "second.wav")
	require.NoError(t, err)
	require.False(t, isNew, "identical bytes must deduplicate")
	require.Equal(t, id1, id2)

	require.Len(t, storedObjects(t, cfg.BaseDir), 1, "exactly one physical object")
	require.Empty(t, storedObjects(t, cfg.TempDir), "no staging leftovers")

	f, err := fs.Get(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "first.wav", f.OriginalName, "first uploader names the file")
	require.Equal(t, int64(len(payload)), f.SizeBytes)
	require.Equal(t, "wav", f.Format)
}

func TestUploadValidation(t *testing.T) {
	fs, _, cfg := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload []byte
		file    string
	}{
		{"unsupported format", []byte("some data"), "notes.txt"},
		{"too small", []byte("abc"), "tiny.wav"},
		{"too large", bytes.Repeat([]byte("x"), int(cfg.MaxFileSize)+1), "huge.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := fs.Upload(ctx, bytes.NewReader(tt.payload), tt.file)
			require.True(t, serr.IsValidation(err), "want validation error, got %v", err)
		})
	}

	require.Empty(t, storedObjects(t, cfg.BaseDir))
	require.Empty(t, storedObjects(t, cfg.TempDir))
}

func TestUploadQuotaRace(t *testing.T) {
	fs, _, cfg := newTestStore(t)
	fs.cfg.QuotaMaxBytes = 15
	ctx := context.Background()

	_, _, err := fs.Upload(ctx, bytes.NewReader([]byte("ten bytes!")), "a.wav")
	require.NoError(t, err)

	_, _, err = fs.Upload(ctx, bytes.NewReader([]byte("other ten.")), "b.wav")
	require.True(t, serr.IsConflict(err), "want quota conflict, got %v", err)

	require.Len(t, storedObjects(t, cfg.BaseDir), 1)
	require.Empty(t, storedObjects(t, cfg.TempDir))
}

func TestUploadCancellation(t *testing.T) {
	fs, _, cfg := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fs.Upload(ctx, strings.NewReader("ten bytes!"), "a.wav")
	require.Error(t, err)

	require.Empty(t, storedObjects(t, cfg.BaseDir), "cancelled upload leaves no object")
	require.Empty(t, storedObjects(t, cfg.TempDir), "cancelled upload leaves no staging file")
}

func TestDeleteReferenceGuard(t *testing.T) {
	fs, db, cfg := newTestStore(t)
	ctx := context.Background()

	id, _, err := fs.Upload(ctx, bytes.NewReader([]byte("ten bytes!")), "a.wav")
	require.NoError(t, err)
	addJob(t, db, "job-1", id)

	err = fs.Delete(ctx, id, false)
	require.True(t, serr.IsConflict(err), "want conflict while referenced, got %v", err)

	refs, err := fs.ReferenceCount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, refs)

	// Force delete succeeds regardless of references and cascades.
	require.NoError(t, fs.Delete(ctx, id, true))
	require.Empty(t, storedObjects(t, cfg.BaseDir), "physical object removed")

	var jobCount int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&jobCount))
	require.Zero(t, jobCount, "jobs cascade with the file")

	err = fs.Delete(ctx, id, false)
	require.True(t, serr.IsNotFound(err))
}

func TestCleanupOrphaned(t *testing.T) {
	fs, db, cfg := newTestStore(t)
	ctx := context.Background()

	orphanID, _, err := fs.Upload(ctx, bytes.NewReader([]byte("orphan....")), "orphan.wav")
	require.NoError(t, err)

	keptID, _, err := fs.Upload(ctx, bytes.NewReader([]byte("still used")), "used.wav")
	require.NoError(t, err)
	addJob(t, db, "job-1", keptID)

	report, err := fs.CleanupOrphaned(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Found)
	require.Equal(t, 1, report.Processed)
	require.Empty(t, report.Errors)

	_, err = fs.Get(ctx, orphanID)
	require.True(t, serr.IsNotFound(err))
	_, err = fs.Get(ctx, keptID)
	require.NoError(t, err)
	require.Len(t, storedObjects(t, cfg.BaseDir), 1)
}

func TestCleanupRespectsMinAge(t *testing.T) {
	fs, _, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := fs.Upload(ctx, bytes.NewReader([]byte("fresh new!")), "fresh.wav")
	require.NoError(t, err)

	report, err := fs.CleanupOrphaned(ctx, 7)
	require.NoError(t, err)
	require.Zero(t, report.Found, "fresh orphan is younger than the cutoff")
}

func TestArchive(t *testing.T) {
	fs, _, cfg := newTestStore(t)
	ctx := context.Background()

	id, _, err := fs.Upload(ctx, bytes.NewReader([]byte("ten bytes!")), "a.wav")
	require.NoError(t, err)

	report, err := fs.Archive(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)

	f, err := fs.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(f.StoragePath, cfg.ArchiveDir))
	_, err = os.Stat(f.StoragePath)
	require.NoError(t, err, "object exists at archived path")
	require.Empty(t, storedObjects(t, cfg.BaseDir))

	// A second pass finds nothing left to move.
	report, err = fs.Archive(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, report.Found)
}

func TestVerifyIntegrity(t *testing.T) {
	fs, _, _ := newTestStore(t)
	ctx := context.Background()

	id, _, err := fs.Upload(ctx, bytes.NewReader([]byte("ten bytes!")), "a.wav")
	require.NoError(t, err)

	ok, err := fs.VerifyIntegrity(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	f, err := fs.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.StoragePath, []byte("corrupted!"), 0o644))

	ok, err = fs.VerifyIntegrity(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckQuota(t *testing.T) {
	fs, _, _ := newTestStore(t)
	fs.cfg.QuotaMaxBytes = 100
	ctx := context.Background()

	_, _, err := fs.Upload(ctx, bytes.NewReader(bytes.Repeat([]byte("x"), 70)), "a.wav")
	require.NoError(t, err)

	info, err := fs.CheckQuota(ctx, 20)
	require.NoError(t, err)
	require.True(t, info.Warning)
	require.False(t, info.Critical)

	info, err = fs.CheckQuota(ctx, 40)
	require.True(t, serr.IsConflict(err))
	require.Equal(t, int64(110), info.TotalAfter)
}

func TestListFiles(t *testing.T) {
	fs, _, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := fs.Upload(ctx, bytes.NewReader([]byte("wav bytes!")), "a.wav")
	require.NoError(t, err)
	_, _, err = fs.Upload(ctx, bytes.NewReader([]byte("mp3 bytes!")), "b.mp3")
	require.NoError(t, err)

	all, err := fs.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyMP3, err := fs.List(ctx, ListFilter{Format: "mp3"})
	require.NoError(t, err)
	require.Len(t, onlyMP3, 1)
	require.Equal(t, "b.mp3", onlyMP3[0].OriginalName)

	paged, err := fs.List(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
}

func TestStats(t *testing.T) {
	fs, _, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := fs.Upload(ctx, bytes.NewReader([]byte("wav bytes!")), "a.wav")
	require.NoError(t, err)
	_, _, err = fs.Upload(ctx, bytes.NewReader([]byte("more wav bytes")), "b.wav")
	require.NoError(t, err)

	st, err := fs.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalFiles)
	require.Equal(t, int64(24), st.TotalBytes)
	require.Equal(t, 1, st.UniqueFormats)
	require.Len(t, st.Breakdown, 1)
	require.Equal(t, "wav", st.Breakdown[0].Format)
}
