package transcript

import (
	"context"
	"strings"
	"time"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/store"
)

// TextDiff measures the text change between two versions.
type TextDiff struct {
	OldChars  int
	NewChars  int
	CharDelta int
	OldWords  int
	NewWords  int
	WordDelta int
}

// SegmentDiff measures how the segment lists of two versions relate.
// A segment counts as matched when some segment in the other version
// overlaps it in time and carries the same trimmed text.
type SegmentDiff struct {
	OldCount      int
	NewCount      int
	CountDelta    int
	OldDuration   float64 // end time of the last segment, in seconds
	NewDuration   float64
	DurationDelta float64
	Matched       int
	Similarity    float64 // matched over the larger count, as a percentage
}

// Comparison is the full delta between two versions of one transcript.
type Comparison struct {
	TranscriptID int64
	OldVersion   int
	NewVersion   int
	Text         TextDiff
	Segments     SegmentDiff
}

// Compare diffs two versions of a transcript.
func (m *Manager) Compare(ctx context.Context, id int64, oldVersion, newVersion int) (*Comparison, error) {
	if oldVersion < 1 || newVersion < 1 {
		return nil, serr.Validation("compare needs two version numbers, got %d and %d", oldVersion, newVersion)
	}

	oldView, err := m.Get(ctx, id, oldVersion)
	if err != nil {
		return nil, err
	}
	newView, err := m.Get(ctx, id, newVersion)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		TranscriptID: id,
		OldVersion:   oldVersion,
		NewVersion:   newVersion,
		Text:         diffText(oldView.Text, newView.Text),
		Segments:     diffSegments(oldView.Segments, newView.Segments),
	}, nil
}

func diffText(oldText, newText string) TextDiff {
	d := TextDiff{
		OldChars: len([]rune(oldText)),
		NewChars: len([]rune(newText)),
		OldWords: len(strings.Fields(oldText)),
		NewWords: len(strings.Fields(newText)),
	}
	d.CharDelta = d.NewChars - d.OldChars
	d.WordDelta = d.NewWords - d.OldWords
	return d
}

func diffSegments(oldSegs, newSegs []Segment) SegmentDiff {
	d := SegmentDiff{
		OldCount:    len(oldSegs),
		NewCount:    len(newSegs),
		CountDelta:  len(newSegs) - len(oldSegs),
		OldDuration: spanEnd(oldSegs),
		NewDuration: spanEnd(newSegs),
	}
	d.DurationDelta = d.NewDuration - d.OldDuration

	used := make([]bool, len(newSegs))
	for _, oldSeg := range oldSegs {
		for i, newSeg := range newSegs {
			if used[i] || !overlaps(oldSeg, newSeg) {
				continue
			}
			if strings.TrimSpace(oldSeg.Text) == strings.TrimSpace(newSeg.Text) {
				used[i] = true
				d.Matched++
				break
			}
		}
	}

	if larger := max(d.OldCount, d.NewCount); larger > 0 {
		d.Similarity = float64(d.Matched) / float64(larger) * 100
	}
	return d
}

func overlaps(a, b Segment) bool {
	return a.Start < b.End && b.Start < a.End
}

// spanEnd is the spoken duration of a segment list, read off the last
// segment's end time.
func spanEnd(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].End
}

// HistoryEntry is one version annotated with its delta from the
// previous version.
type HistoryEntry struct {
	Version      int
	CreatedAt    time.Time
	CreatedBy    string
	ChangeNote   string
	SegmentCount int
	TextLength   int
	CharDelta    int // versus the previous version, zero for version 1
	SegmentDelta int
	IsCurrent    bool
}

// HistoryReport is the full story of a transcript: every version with
// its deltas, plus the export audit trail.
type HistoryReport struct {
	TranscriptID int64
	Entries      []HistoryEntry
	Exports      []ExportRecord
}

// History reports a transcript's version chain in order, each entry
// carrying the size change its edit introduced, together with the
// exports recorded against the transcript.
func (m *Manager) History(ctx context.Context, id int64) (*HistoryReport, error) {
	if err := m.mustExist(ctx, id); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(ctx,
		`SELECT version_number, LENGTH(text), segment_count, created_at, created_by,
		        COALESCE(change_note, ''), is_current
		 FROM versions WHERE transcript_id = ? ORDER BY version_number`, id)
	if err != nil {
		return nil, serr.Internal(err, "read history")
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			created string
			current int
		)
		if err := rows.Scan(&e.Version, &e.TextLength, &e.SegmentCount,
			&created, &e.CreatedBy, &e.ChangeNote, &current); err != nil {
			return nil, serr.Internal(err, "scan history")
		}
		if e.CreatedAt, err = store.ParseTime(created); err != nil {
			return nil, serr.Internal(err, "scan history")
		}
		e.IsCurrent = current == 1
		if n := len(out); n > 0 {
			prev := out[n-1]
			e.CharDelta = e.TextLength - prev.TextLength
			e.SegmentDelta = e.SegmentCount - prev.SegmentCount
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "read history")
	}

	exports, err := m.Exports(ctx, id)
	if err != nil {
		return nil, err
	}
	return &HistoryReport{TranscriptID: id, Entries: out, Exports: exports}, nil
}
