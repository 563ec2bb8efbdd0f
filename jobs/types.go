package jobs

import (
	"time"

	serr "github.com/randalmurphal/scribe/errors"
)

// Status is the lifecycle state of a transcription job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the allowed next states for each status. Anything
// not listed here is rejected by the ledger.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a job in state s may move to state to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Task types accepted by the transcription engine.
const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// Model sizes accepted by the transcription engine.
var modelSizes = map[string]bool{
	"tiny":     true,
	"base":     true,
	"small":    true,
	"medium":   true,
	"large":    true,
	"large-v2": true,
	"large-v3": true,
}

// Params carries the transcription parameters a job was created with.
// Zero values fall back to the engine defaults at creation time.
type Params struct {
	ModelSize   string
	TaskType    string
	Language    string
	ComputeType string
	Device      string
	BeamSize    int
}

func (p *Params) applyDefaults() {
	if p.ModelSize == "" {
		p.ModelSize = "base"
	}
	if p.TaskType == "" {
		p.TaskType = TaskTranscribe
	}
	if p.BeamSize == 0 {
		p.BeamSize = 5
	}
}

func (p Params) validate() error {
	if !modelSizes[p.ModelSize] {
		return serr.Validation("unknown model size %q", p.ModelSize)
	}
	if p.TaskType != TaskTranscribe && p.TaskType != TaskTranslate {
		return serr.Validation("task type must be %q or %q, got %q",
			TaskTranscribe, TaskTranslate, p.TaskType)
	}
	if p.BeamSize < 1 || p.BeamSize > 20 {
		return serr.Validation("beam size must be between 1 and 20, got %d", p.BeamSize)
	}
	return nil
}

// Job is one transcription run against a stored file.
type Job struct {
	ID     string
	FileID int64
	Params

	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     *float64 // audio length in seconds, set on completion
	Processing   *float64 // wall-clock seconds spent transcribing
	ErrorMessage string
}
