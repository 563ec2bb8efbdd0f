package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	serr "github.com/randalmurphal/scribe/errors"
	"github.com/randalmurphal/scribe/transcript"
)

// Options tunes rendering where a format has choices to make.
type Options struct {
	// Timestamps prefixes each plain-text line with its time range.
	// Only the txt format reads it.
	Timestamps bool
}

// Render converts a transcript view into the given format.
func Render(f Format, view *transcript.View, opts Options) ([]byte, error) {
	if view == nil || len(view.Segments) == 0 {
		return nil, serr.Validation("nothing to export")
	}
	switch f {
	case FormatSRT:
		return renderSRT(view.Segments), nil
	case FormatVTT:
		return renderVTT(view.Segments), nil
	case FormatJSON:
		return renderJSON(view)
	case FormatTXT:
		return renderTXT(view.Segments, opts.Timestamps), nil
	case FormatCSV:
		return renderCSV(view.Segments)
	}
	return nil, serr.Validation("unsupported export format %q", f)
}

func renderSRT(segments []transcript.Segment) []byte {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return []byte(b.String())
}

func renderVTT(segments []transcript.Segment) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTimestamp(seg.Start), vttTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return []byte(b.String())
}

func renderTXT(segments []transcript.Segment, timestamps bool) []byte {
	var b strings.Builder
	for _, seg := range segments {
		if timestamps {
			fmt.Fprintf(&b, "[%s–%s] ", clockTimestamp(seg.Start), clockTimestamp(seg.End))
		}
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func renderCSV(segments []transcript.Segment) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"index", "start", "end", "duration", "text"}); err != nil {
		return nil, serr.Internal(err, "write csv")
	}
	for i, seg := range segments {
		rec := []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", seg.Start),
			fmt.Sprintf("%.3f", seg.End),
			fmt.Sprintf("%.3f", seg.End-seg.Start),
			strings.TrimSpace(seg.Text),
		}
		if err := w.Write(rec); err != nil {
			return nil, serr.Internal(err, "write csv")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, serr.Internal(err, "write csv")
	}
	return buf.Bytes(), nil
}

// Document is the whisper-json interchange form. It carries enough to
// reimport a transcript without the database it came from.
type Document struct {
	Format       string               `json:"format"`
	Version      string               `json:"version"`
	Metadata     Metadata             `json:"metadata"`
	Text         string               `json:"text"`
	SegmentCount int                  `json:"segment_count"`
	Segments     []transcript.Segment `json:"segments"`
}

// Metadata identifies where an exported document came from.
type Metadata struct {
	Language          string `json:"language"`
	JobID             string `json:"job_id"`
	TranscriptVersion int    `json:"transcript_version"`
}

const (
	documentFormat  = "whisper-json"
	documentVersion = "1.0"
)

func renderJSON(view *transcript.View) ([]byte, error) {
	doc := Document{
		Format:  documentFormat,
		Version: documentVersion,
		Metadata: Metadata{
			Language:          view.Language,
			JobID:             view.JobID,
			TranscriptVersion: view.Version,
		},
		Text:         view.Text,
		SegmentCount: view.SegmentCount,
		Segments:     view.Segments,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, serr.Internal(err, "encode transcript document")
	}
	return append(out, '\n'), nil
}

// ParseJSON reads a whisper-json document back, checking the format
// tag and the segment rules before accepting it.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, serr.Validation("not a transcript document: %v", err)
	}
	if doc.Format != documentFormat {
		return nil, serr.Validation("unexpected document format %q, want %q", doc.Format, documentFormat)
	}
	if err := transcript.ValidateSegments(doc.Segments); err != nil {
		return nil, err
	}
	return &doc, nil
}

// srtTimestamp renders seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitClock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// vttTimestamp renders seconds as HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitClock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// clockTimestamp renders seconds as HH:MM:SS for human reading.
func clockTimestamp(seconds float64) string {
	h, m, s, _ := splitClock(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func splitClock(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms = int(seconds*1000+0.5) - total*1000
	if ms >= 1000 {
		total++
		ms -= 1000
	}
	return total / 3600, (total % 3600) / 60, total % 60, ms
}
