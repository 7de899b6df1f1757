// Package redis implements workflow.Store using Redis. Runs are stored
// as Hashes carrying a few indexable scalar fields plus the full JSON
// document; checkpoints live in a per-run List so creation order falls
// out of the data structure.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/workflow"
)

// Compile-time interface check.
var _ workflow.Store = (*Store)(nil)

// Redis key naming. All keys are prefixed with "flowline:" to avoid
// collisions.
const keyPrefix = "flowline:"

// runKey returns the key for a run entity: flowline:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
const runIDsKey = keyPrefix + "run_ids"

// checkpointsKey returns the List key holding a run's checkpoints in
// creation order: flowline:checkpoints:{runID}
func checkpointsKey(runID string) string { return keyPrefix + "checkpoints:" + runID }

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements workflow.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	rID := run.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowline/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return flowline.ErrRunAlreadyExists
	}

	m, err := runToMap(run)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	pipe.SAdd(ctx, runIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	vals, err := s.client.HGetAll(ctx, runKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, flowline.ErrRunNotFound
	}
	return mapToRun(runID, vals)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	key := runKey(run.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowline/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return flowline.ErrRunNotFound
	}

	m, err := runToMap(run)
	if err != nil {
		return err
	}
	m["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.client.HSet(ctx, key, m).Result(); err != nil {
		return fmt.Errorf("flowline/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns workflow runs matching the given options, ordered by
// creation time.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list runs smembers: %w", err)
	}

	var runs []*workflow.Run
	for _, rID := range ids {
		runID, parseErr := id.ParseRunID(rID)
		if parseErr != nil {
			s.logger.Warn("skipping unparseable run id in index",
				slog.String("id", rID),
				slog.String("error", parseErr.Error()),
			)
			continue
		}
		run, getErr := s.GetRun(ctx, runID)
		if getErr != nil {
			s.logger.Warn("skipping unreadable run",
				slog.String("run_id", rID),
				slog.String("error", getErr.Error()),
			)
			continue
		}
		if opts.Status != "" && run.Status != opts.Status {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, k int) bool {
		return runs[i].CreatedAt.Before(runs[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// DeleteRun removes a run and all of its checkpoints.
func (s *Store) DeleteRun(ctx context.Context, runID id.RunID) error {
	rID := runID.String()
	exists, err := s.client.Exists(ctx, runKey(rID)).Result()
	if err != nil {
		return fmt.Errorf("flowline/redis: delete run exists: %w", err)
	}
	if exists == 0 {
		return flowline.ErrRunNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, runKey(rID))
	pipe.Del(ctx, checkpointsKey(rID))
	pipe.SRem(ctx, runIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: delete run: %w", err)
	}
	return nil
}

// SaveCheckpoint appends a checkpoint to the run's checkpoint list.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("flowline/redis: marshal checkpoint %s: %w", cp.ID, err)
	}
	if err := s.client.RPush(ctx, checkpointsKey(cp.RunID.String()), data).Err(); err != nil {
		return fmt.Errorf("flowline/redis: save checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints for a run, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	items, err := s.client.LRange(ctx, checkpointsKey(runID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list checkpoints: %w", err)
	}

	checkpoints := make([]*workflow.Checkpoint, 0, len(items))
	for i, item := range items {
		var cp workflow.Checkpoint
		if err := json.Unmarshal([]byte(item), &cp); err != nil {
			return nil, fmt.Errorf("flowline/redis: decode checkpoint %d for run %s: %w: %w",
				i, runID, flowline.ErrStateCorrupt, err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// ── helpers ──

// runToMap stores indexable scalars as hash fields and the full run as
// a JSON document in "data".
func runToMap(r *workflow.Run) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: marshal run %s: %w", r.ID, err)
	}
	return map[string]any{
		"id":         r.ID.String(),
		"name":       r.Name,
		"status":     string(r.Status),
		"created_at": r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": r.UpdatedAt.Format(time.RFC3339Nano),
		"data":       string(data),
	}, nil
}

func mapToRun(runID id.RunID, m map[string]string) (*workflow.Run, error) {
	data, ok := m["data"]
	if !ok || data == "" {
		return nil, fmt.Errorf("flowline/redis: run %s record has no document: %w", runID, flowline.ErrStateCorrupt)
	}
	var run workflow.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("flowline/redis: decode run %s: %w: %w", runID, flowline.ErrStateCorrupt, err)
	}
	return &run, nil
}
