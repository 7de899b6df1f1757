package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/workflow"
)

// ── Run model ─────────────────────────────────────────────────────

// runModel carries indexable scalar columns plus the full run document
// as JSONB. The document is authoritative; the scalars exist for
// filtering and listing without decoding every row.
type runModel struct {
	bun.BaseModel `bun:"table:flowline_runs"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Status    string    `bun:"status,notnull,default:'pending'"`
	Data      []byte    `bun:"data,notnull,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRunModel(r *workflow.Run) (*runModel, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("flowline/postgres: marshal run %s: %w", r.ID, err)
	}
	return &runModel{
		ID:        r.ID.String(),
		Name:      r.Name,
		Status:    string(r.Status),
		Data:      data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func fromRunModel(m *runModel) (*workflow.Run, error) {
	var run workflow.Run
	if err := json.Unmarshal(m.Data, &run); err != nil {
		return nil, fmt.Errorf("flowline/postgres: decode run %s: %w: %w",
			m.ID, flowline.ErrStateCorrupt, err)
	}
	return &run, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

// checkpointModel rows are ordered by the seq column, assigned by the
// database on insert.
type checkpointModel struct {
	bun.BaseModel `bun:"table:flowline_checkpoints"`

	Seq       int64     `bun:"seq,pk,autoincrement"`
	ID        string    `bun:"id,notnull"`
	RunID     string    `bun:"run_id,notnull"`
	StepID    string    `bun:"step_id,notnull"`
	State     []byte    `bun:"state,notnull,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toCheckpointModel(cp *workflow.Checkpoint) (*checkpointModel, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("flowline/postgres: marshal checkpoint %s: %w", cp.ID, err)
	}
	return &checkpointModel{
		ID:        cp.ID.String(),
		RunID:     cp.RunID.String(),
		StepID:    cp.StepID,
		State:     state,
		CreatedAt: cp.CreatedAt,
	}, nil
}

func fromCheckpointModel(m *checkpointModel) (*workflow.Checkpoint, error) {
	parsedID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("flowline/postgres: parse checkpoint id %q: %w", m.ID, err)
	}

	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("flowline/postgres: parse run id %q: %w", m.RunID, err)
	}

	var state *workflow.Run
	if len(m.State) > 0 {
		state = new(workflow.Run)
		if err := json.Unmarshal(m.State, state); err != nil {
			return nil, fmt.Errorf("flowline/postgres: decode checkpoint %s state: %w: %w",
				m.ID, flowline.ErrStateCorrupt, err)
		}
	}

	return &workflow.Checkpoint{
		ID:        parsedID,
		RunID:     parsedRunID,
		StepID:    m.StepID,
		State:     state,
		CreatedAt: m.CreatedAt,
	}, nil
}
