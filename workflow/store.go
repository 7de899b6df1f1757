package workflow

import (
	"context"

	"github.com/flowline-dev/flowline/id"
)

// ListOpts controls filtering and pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// Status filters by run status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for workflow runs and
// checkpoints. All writes are atomic at the level of a single record: a
// reader never observes a partially written run or checkpoint.
//
// Implementations must keep independent run IDs isolated — concurrent
// runs under the same store never contaminate each other's records.
type Store interface {
	// CreateRun persists a new run. Returns flowline.ErrRunAlreadyExists
	// if the ID is taken.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns flowline.ErrRunNotFound when
	// no record exists, and an error wrapping flowline.ErrStateCorrupt
	// when a record exists but cannot be decoded. Corruption is never
	// reported as "not found".
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the given options, ordered by
	// creation time.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// DeleteRun removes a run and all of its checkpoints.
	DeleteRun(ctx context.Context, runID id.RunID) error

	// SaveCheckpoint persists a checkpoint record.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// ListCheckpoints returns all checkpoints for a run in creation
	// order (oldest first).
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)
}
