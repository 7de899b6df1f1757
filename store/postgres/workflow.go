package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return flowline.ErrRunAlreadyExists
		}
		return fmt.Errorf("flowline/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, flowline.ErrRunNotFound
		}
		return nil, fmt.Errorf("flowline/postgres: get run: %w", err)
	}
	return fromRunModel(m)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("flowline/postgres: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return flowline.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, ordered by
// creation time.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var models []runModel
	q := s.db.NewSelect().Model(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.OrderExpr("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("flowline/postgres: list runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// DeleteRun removes a run. Checkpoints go with it via ON DELETE CASCADE.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	res, err := s.db.NewDelete().
		TableExpr("flowline_runs").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flowline/postgres: delete run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return flowline.ErrRunNotFound
	}
	return nil
}

// SaveCheckpoint persists a checkpoint record.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).ExcludeColumn("seq").Exec(ctx); err != nil {
		return fmt.Errorf("flowline/postgres: save checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints for a run, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowline/postgres: list checkpoints: %w", err)
	}

	checkpoints := make([]*workflow.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}
