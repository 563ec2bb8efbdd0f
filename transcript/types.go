package transcript

import (
	"strings"
	"time"

	"golang.org/x/text/language"

	serr "github.com/randalmurphal/scribe/errors"
)

// Segment is one timed span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ValidateSegments checks the structural rules every stored segment
// list must satisfy: non-empty, non-negative times, end after start,
// ordered by start time, and no blank text.
func ValidateSegments(segments []Segment) error {
	if len(segments) == 0 {
		return serr.Validation("transcript needs at least one segment")
	}
	for i, seg := range segments {
		if seg.Start < 0 {
			return serr.Validation("segment %d starts at %.3f, before zero", i, seg.Start)
		}
		if seg.End < seg.Start {
			return serr.Validation("segment %d ends at %.3f, before its start %.3f", i, seg.End, seg.Start)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return serr.Validation("segment %d has no text", i)
		}
		if i > 0 && seg.Start < segments[i-1].Start {
			return serr.Validation("segment %d starts before segment %d", i, i-1)
		}
	}
	return nil
}

// JoinText renders the full transcript text from its segments.
func JoinText(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = strings.TrimSpace(seg.Text)
	}
	return strings.Join(parts, " ")
}

// NormalizeLanguage canonicalizes a language tag to its lowercase base
// form, so "EN", "en-US" and "eng" all store as "en".
func NormalizeLanguage(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", serr.Validation("language must not be empty")
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", serr.Validation("unrecognized language %q", raw)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// View is a transcript at one specific version.
type View struct {
	ID           int64
	JobID        string
	Language     string
	Text         string
	Segments     []Segment
	SegmentCount int
	Version      int
	IsCurrent    bool
	CreatedAt    time.Time
}

// VersionInfo summarizes one row of a transcript's history.
type VersionInfo struct {
	Number       int
	SegmentCount int
	TextLength   int
	CreatedAt    time.Time
	CreatedBy    string
	ChangeNote   string
	IsCurrent    bool
}

// ExportRecord is one audit entry for a completed export.
type ExportRecord struct {
	ExportID     string
	TranscriptID int64
	Version      int // 0 when the export did not pin a version
	Format       string
	OutputPath   string
	ExportedAt   time.Time
	ExportedBy   string
}
