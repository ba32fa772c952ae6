package model

import "time"

// RunKind identifies which command produced a run record.
type RunKind string

const (
	RunKindBatch RunKind = "batch"
	RunKindInfer RunKind = "infer"
)

// Run is the persisted summary of one batch or inference invocation.
type Run struct {
	ID         string       `json:"id"`
	Kind       RunKind      `json:"kind"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Failures   []RunFailure `json:"failures,omitempty"`
}

// RunFailure records one entity that failed within a run.
type RunFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
