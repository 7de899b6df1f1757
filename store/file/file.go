// Package file provides a filesystem-backed workflow store. Each run is
// one JSON document and each checkpoint another; writes go to a
// temporary file in the same directory followed by an atomic rename, so
// a crash mid-write never leaves a torn record behind.
//
// Layout under the root directory:
//
//	runs/<run_id>.json
//	checkpoints/<run_id>/<seq>.json
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/workflow"
)

// Ensure Store implements workflow.Store at compile time.
var _ workflow.Store = (*Store)(nil)

// Store persists runs and checkpoints as JSON files. A single mutex
// serializes writes; reads of distinct runs are independent files, but
// the mutex keeps list operations consistent with in-flight renames.
type Store struct {
	mu   sync.Mutex
	root string
}

// New creates (if needed) the directory layout under root and returns
// the store.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "runs"), filepath.Join(root, "checkpoints")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file store: create %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) runPath(runID id.RunID) string {
	return filepath.Join(s.root, "runs", runID.String()+".json")
}

func (s *Store) checkpointDir(runID id.RunID) string {
	return filepath.Join(s.root, "checkpoints", runID.String())
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(run.ID)
	if _, err := os.Stat(path); err == nil {
		return flowline.ErrRunAlreadyExists
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	return writeAtomic(path, data)
}

// GetRun retrieves a workflow run by ID. A record that exists but does
// not decode reports corruption, never "not found".
func (s *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, flowline.ErrRunNotFound
		}
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}

	var run workflow.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w: %w", runID, flowline.ErrStateCorrupt, err)
	}
	return &run, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(run.ID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return flowline.ErrRunNotFound
		}
		return fmt.Errorf("stat run %s: %w", run.ID, err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	return writeAtomic(path, data)
}

// ListRuns returns runs matching the given options, ordered by creation
// time.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "runs"))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	result := make([]*workflow.Run, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		runID, err := id.ParseRunID(name[:len(name)-len(".json")])
		if err != nil {
			continue
		}
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			if errors.Is(err, flowline.ErrRunNotFound) {
				continue // deleted between ReadDir and read
			}
			return nil, err
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		result = append(result, run)
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
func (s *Store) DeleteRun(_ context.Context, runID id.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(runID)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return flowline.ErrRunNotFound
		}
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if err := os.RemoveAll(s.checkpointDir(runID)); err != nil {
		return fmt.Errorf("delete checkpoints for run %s: %w", runID, err)
	}
	return nil
}

// SaveCheckpoint persists a checkpoint record. Files are numbered
// sequentially so lexical order is creation order.
func (s *Store) SaveCheckpoint(_ context.Context, cp *workflow.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.checkpointDir(cp.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir for run %s: %w", cp.RunID, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read checkpoint dir for run %s: %w", cp.RunID, err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", cp.ID, err)
	}
	return writeAtomic(filepath.Join(dir, fmt.Sprintf("%08d.json", len(entries)+1)), data)
}

// ListCheckpoints returns all checkpoints for a run, oldest first.
func (s *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	dir := s.checkpointDir(runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	result := make([]*workflow.Checkpoint, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", name, err)
		}
		var cp workflow.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s for run %s: %w: %w", name, runID, flowline.ErrStateCorrupt, err)
		}
		result = append(result, &cp)
	}
	return result, nil
}
