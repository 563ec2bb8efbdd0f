// Package transcript stores transcription results and the edit history
// behind them.
//
// Every transcript keeps an immutable chain of versions. Saving the
// engine output creates version 1; each edit appends a new version and
// marks it current, never rewriting an old one. Rolling back is itself
// an append, so history stays complete. The package also maintains the
// full-text search index over current transcript text, written in the
// same transaction as the data so search never lags behind it.
package transcript
