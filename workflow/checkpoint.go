package workflow

import (
	"time"

	"github.com/flowline-dev/flowline/id"
)

// Checkpoint is a durable snapshot of a run's state, tagged with the
// step whose terminal outcome triggered it. Checkpoints are written
// atomically by the store and superseded (not necessarily deleted) by
// the next one; they exist only to support resume.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	StepID    string          `json:"step_id"`
	State     *Run            `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewCheckpoint snapshots the given run state, tagged with stepID.
func NewCheckpoint(run *Run, stepID string) *Checkpoint {
	return &Checkpoint{
		ID:        id.NewCheckpointID(),
		RunID:     run.ID,
		StepID:    stepID,
		State:     run.Snapshot(),
		CreatedAt: time.Now().UTC(),
	}
}
