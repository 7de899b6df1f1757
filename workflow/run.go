package workflow

import (
	"time"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
)

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	// StatusPending means the run is created but not yet executing.
	StatusPending Status = "pending"
	// StatusRunning means the run is currently executing.
	StatusRunning Status = "running"
	// StatusCompleted means every step ended in success or was skipped.
	StatusCompleted Status = "completed"
	// StatusFailed means at least one step ended in failure, or the run
	// exceeded its global timeout.
	StatusFailed Status = "failed"
	// StatusPaused means the run is suspended awaiting an external resume.
	StatusPaused Status = "paused"
	// StatusCancelled means the run was cancelled by the caller.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepSet is a set of step IDs, JSON-serialized as a map.
type StepSet map[string]bool

// Add inserts a step ID into the set.
func (s StepSet) Add(stepID string) { s[stepID] = true }

// Has reports whether the set contains the step ID.
func (s StepSet) Has(stepID string) bool { return s[stepID] }

// Run is the mutable state of one workflow instance. It is owned
// exclusively by the engine driving it; concurrent steps record results
// through the engine's single scheduling loop, never directly.
//
// The originating definition is embedded so that a persisted run can be
// resumed after a process restart without consulting any catalog.
type Run struct {
	flowline.Entity

	ID          id.RunID               `json:"id"`
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Definition  *Definition            `json:"definition"`
	StepResults map[string]*StepResult `json:"step_results"`
	Completed   StepSet                `json:"completed"`
	Failed      StepSet                `json:"failed"`
	Skipped     StepSet                `json:"skipped"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}

// NewRun creates a pending run for the given definition.
func NewRun(def *Definition) *Run {
	return &Run{
		Entity:      flowline.NewEntity(),
		ID:          id.NewRunID(),
		Name:        def.Name,
		Status:      StatusPending,
		Definition:  def,
		StepResults: make(map[string]*StepResult, len(def.Steps)),
		Completed:   make(StepSet),
		Failed:      make(StepSet),
		Skipped:     make(StepSet),
	}
}

// Record stores a terminal step result and updates the derived outcome
// sets. Results are immutable once recorded; recording the same step
// twice replaces the entry (retry supersession happens inside the step
// runner, not here).
func (r *Run) Record(res *StepResult) {
	r.StepResults[res.StepID] = res
	switch res.Outcome {
	case OutcomeSuccess:
		r.Completed.Add(res.StepID)
	case OutcomeFailure:
		r.Failed.Add(res.StepID)
	case OutcomeSkipped:
		r.Skipped.Add(res.StepID)
	}
	r.Touch()
}

// Snapshot returns a deep-enough copy of the run for checkpointing.
// StepResult values are immutable after creation, so sharing the result
// pointers is safe; the maps themselves are copied.
func (r *Run) Snapshot() *Run {
	cp := *r
	cp.StepResults = make(map[string]*StepResult, len(r.StepResults))
	for k, v := range r.StepResults {
		cp.StepResults[k] = v
	}
	cp.Completed = make(StepSet, len(r.Completed))
	for k := range r.Completed {
		cp.Completed.Add(k)
	}
	cp.Failed = make(StepSet, len(r.Failed))
	for k := range r.Failed {
		cp.Failed.Add(k)
	}
	cp.Skipped = make(StepSet, len(r.Skipped))
	for k := range r.Skipped {
		cp.Skipped.Add(k)
	}
	return &cp
}

// Result summarizes a terminated run.
func (r *Run) Result() *Result {
	res := &Result{
		RunID:       r.ID,
		Status:      r.Status,
		StepResults: r.StepResults,
		Error:       r.Error,
	}
	if r.FinishedAt != nil {
		res.Duration = r.FinishedAt.Sub(r.StartedAt)
	}
	return res
}

// Result is the immutable terminal summary of a run.
type Result struct {
	RunID       id.RunID               `json:"run_id"`
	Status      Status                 `json:"status"`
	StepResults map[string]*StepResult `json:"step_results"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
}
