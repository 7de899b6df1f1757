// Package memory provides a fully in-memory workflow store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/workflow"
)

// Ensure Store implements workflow.Store at compile time.
var _ workflow.Store = (*Store)(nil)

// Store keeps runs and checkpoints in maps guarded by a single RWMutex.
// Records are snapshotted on write and on read so that callers can keep
// mutating their run without racing other readers of the store.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*workflow.Run
	checkpoints map[string][]*workflow.Checkpoint // key: runID, creation order
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string][]*workflow.Checkpoint),
	}
}

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return flowline.ErrRunAlreadyExists
	}
	m.runs[key] = run.Snapshot()
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, flowline.ErrRunNotFound
	}
	return r.Snapshot(), nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return flowline.ErrRunNotFound
	}
	m.runs[key] = run.Snapshot()
	return nil
}

// ListRuns returns workflow runs matching the given options, ordered by
// creation time.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, r.Snapshot())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// DeleteRun removes a run and all of its checkpoints.
func (m *Store) DeleteRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	if _, ok := m.runs[key]; !ok {
		return flowline.ErrRunNotFound
	}
	delete(m.runs, key)
	delete(m.checkpoints, key)
	return nil
}

// SaveCheckpoint appends a checkpoint for the run.
func (m *Store) SaveCheckpoint(_ context.Context, cp *workflow.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cp.RunID.String()
	m.checkpoints[key] = append(m.checkpoints[key], cp)
	return nil
}

// ListCheckpoints returns all checkpoints for a run, oldest first.
func (m *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cps := m.checkpoints[runID.String()]
	result := make([]*workflow.Checkpoint, len(cps))
	copy(result, cps)
	return result, nil
}
