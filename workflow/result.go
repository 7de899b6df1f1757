package workflow

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal outcome of a single step.
type Outcome string

const (
	// OutcomeSuccess means the agent invocation succeeded.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the agent invocation failed after exhausting
	// any configured retries, timed out, or was cancelled.
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped means the step's condition evaluated false or the
	// step was skipped by failure propagation; no agent was invoked.
	OutcomeSkipped Outcome = "skipped"
)

// StepResult records the terminal outcome of one step within a run.
// It is created once per step per run and immutable after creation; a
// retry produces a new attempt but the final result supersedes prior
// attempts via AttemptCount.
type StepResult struct {
	StepID  string  `json:"step_id"`
	Outcome Outcome `json:"outcome"`

	// Output is the opaque agent output. Present only on success.
	Output json.RawMessage `json:"output,omitempty"`

	// Error describes the failure. Present only when Outcome is failure.
	Error string `json:"error,omitempty"`

	// AttemptCount is the number of agent invocations made for this
	// step (1 for a first-attempt success; 0 for a skipped step).
	AttemptCount int `json:"attempt_count"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the step ended in success.
func (s *StepResult) Succeeded() bool { return s.Outcome == OutcomeSuccess }

// FailedOutcome reports whether the step ended in failure.
func (s *StepResult) FailedOutcome() bool { return s.Outcome == OutcomeFailure }
