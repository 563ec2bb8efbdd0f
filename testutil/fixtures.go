package testutil

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/scribe/config"
	"github.com/randalmurphal/scribe/store"
	"github.com/randalmurphal/scribe/transcript"
)

// StorageConfig returns a storage configuration rooted in a temporary
// directory, with limits loose enough for small test payloads.
func StorageConfig(t *testing.T) config.Storage {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.BaseDir = filepath.Join(root, "uploads")
	cfg.ArchiveDir = filepath.Join(root, "archive")
	cfg.TempDir = filepath.Join(root, "temp")
	cfg.MinFileSize = 1
	return cfg
}

// OpenDB opens a fresh database in a temporary directory and closes it
// when the test ends.
func OpenDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "scribe.db"), store.Options{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Audio returns a deterministic fake audio payload of the given size.
// Two calls with the same seed produce identical bytes, so tests can
// exercise deduplication.
func Audio(seed byte, size int) io.Reader {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i%251)
	}
	return bytes.NewReader(buf)
}

// Segments builds n well-formed segments of two seconds each.
func Segments(n int) []transcript.Segment {
	segs := make([]transcript.Segment, n)
	for i := range segs {
		segs[i] = transcript.Segment{
			Start: float64(i) * 2,
			End:   float64(i)*2 + 2,
			Text:  fmt.Sprintf("Segment number %d of the recording.", i+1),
		}
	}
	return segs
}
