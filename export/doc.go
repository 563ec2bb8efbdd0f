// Package export renders transcripts into interchange formats.
//
// Five formats are supported: SubRip (srt), WebVTT (vtt), a
// round-trippable JSON document, plain text with optional timestamp
// markers, and CSV. Rendering is pure; the Recorder wraps it with the
// file write and the audit trail entry, and an audit failure never
// costs the caller the rendered bytes.
package export
