package export

import (
	"strings"

	serr "github.com/randalmurphal/scribe/errors"
)

// Format names one supported export format.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// Formats lists every supported format in a stable order.
func Formats() []Format {
	return []Format{FormatSRT, FormatVTT, FormatJSON, FormatTXT, FormatCSV}
}

// ParseFormat resolves a user-supplied format name or file extension.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatSRT, FormatVTT, FormatJSON, FormatTXT, FormatCSV:
		return f, nil
	}
	return "", serr.Validation("unsupported export format %q", s)
}

// Extension returns the file extension for the format, dot included.
func (f Format) Extension() string {
	return "." + string(f)
}

// MIME returns the media type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	case FormatJSON:
		return "application/json"
	case FormatTXT:
		return "text/plain"
	case FormatCSV:
		return "text/csv"
	}
	return "application/octet-stream"
}

// Description returns a short human-readable name for the format.
func (f Format) Description() string {
	switch f {
	case FormatSRT:
		return "SubRip subtitles"
	case FormatVTT:
		return "WebVTT subtitles"
	case FormatJSON:
		return "Whisper JSON document"
	case FormatTXT:
		return "Plain text"
	case FormatCSV:
		return "Comma-separated segments"
	}
	return string(f)
}
