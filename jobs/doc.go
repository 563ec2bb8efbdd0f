// Package jobs tracks transcription jobs through their lifecycle.
//
// A job ties an uploaded audio file to one transcription run and its
// parameters (model size, task type, beam size and so on). The ledger
// enforces the status machine: pending jobs may start processing or be
// cancelled, processing jobs may complete, fail or be cancelled, and
// terminal jobs never move again. Failed jobs can be retried, which
// creates a fresh pending job with the same parameters rather than
// rewinding the failed one.
package jobs
