// Package engine provides the workflow executor: it validates
// definitions into dependency graphs, schedules ready steps with bounded
// concurrency, records checkpoints after every step, and exposes the
// run lifecycle operations (start, resume, cancel, status).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/agent"
	"github.com/flowline-dev/flowline/backoff"
	"github.com/flowline-dev/flowline/ext"
	"github.com/flowline-dev/flowline/graph"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/middleware"
	"github.com/flowline-dev/flowline/workflow"
)

// execution tracks one in-process run.
type execution struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine executes workflow runs. Each run is driven by a single
// scheduling goroutine; concurrent steps report back to that goroutine,
// which is the only writer of run state, so checkpoints form a strict
// sequence.
type Engine struct {
	store       workflow.Store
	agents      *agent.Registry
	definitions *workflow.Registry
	extensions  *ext.Registry
	runner      *agent.Runner
	config      flowline.Config
	logger      *slog.Logger
	backoff     backoff.Strategy
	userMW      []middleware.Middleware
	pendingExts []ext.Extension

	mu     sync.Mutex
	active map[id.RunID]*execution
	closed bool
}

// New creates an Engine backed by the given store and agent registry.
func New(store workflow.Store, agents *agent.Registry, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, flowline.ErrNoStore
	}
	if agents == nil {
		agents = agent.NewRegistry()
	}

	e := &Engine{
		store:       store,
		agents:      agents,
		definitions: workflow.NewRegistry(),
		config:      flowline.DefaultConfig(),
		logger:      slog.Default(),
		backoff:     backoff.Default(),
		active:      make(map[id.RunID]*execution),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.extensions = ext.NewRegistry(e.logger)
	for _, x := range e.pendingExts {
		e.extensions.Register(x)
	}
	e.pendingExts = nil

	mws := append([]middleware.Middleware{
		middleware.Recover(e.logger),
		middleware.Timeout(e.logger),
	}, e.userMW...)
	e.runner = agent.NewRunner(e.agents, e.extensions, e.backoff, e.logger, e.config.CancelGrace, mws...)

	return e, nil
}

// Definitions returns the engine's definition catalog. Definitions
// registered here can be started by name.
func (e *Engine) Definitions() *workflow.Registry { return e.definitions }

// Extensions returns the engine's extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Start validates the definition, persists a new run, and begins
// executing it in the background. The returned RunID can be used with
// Wait, Status, and Cancel.
func (e *Engine) Start(ctx context.Context, def *workflow.Definition) (id.RunID, error) {
	g, err := graph.Build(def, e.logger)
	if err != nil {
		return id.RunID{}, err
	}

	run := workflow.NewRun(def)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return id.RunID{}, fmt.Errorf("create run for workflow %q: %w", def.Name, err)
	}

	if err := e.launch(run, g); err != nil {
		return id.RunID{}, err
	}
	return run.ID, nil
}

// StartByName starts a run of the named definition from the engine's
// catalog, using the highest registered version.
func (e *Engine) StartByName(ctx context.Context, name string) (id.RunID, error) {
	def, err := e.definitions.Get(name)
	if err != nil {
		return id.RunID{}, fmt.Errorf("start workflow %q: %w", name, err)
	}
	return e.Start(ctx, def)
}

// Execute runs a definition synchronously and returns its terminal
// result. If ctx is cancelled while waiting, the run is cancelled.
func (e *Engine) Execute(ctx context.Context, def *workflow.Definition) (*workflow.Result, error) {
	runID, err := e.Start(ctx, def)
	if err != nil {
		return nil, err
	}

	res, err := e.Wait(ctx, runID)
	if err != nil {
		if cancelErr := e.Cancel(context.WithoutCancel(ctx), runID); cancelErr != nil {
			e.logger.Warn("cancel after wait failure",
				slog.String("run_id", runID.String()),
				slog.String("error", cancelErr.Error()),
			)
		}
		return nil, err
	}
	return res, nil
}

// Wait blocks until the run reaches a terminal status and returns its
// result. For a run not executing in this engine, Wait returns the
// stored result if the run is already terminal.
func (e *Engine) Wait(ctx context.Context, runID id.RunID) (*workflow.Result, error) {
	e.mu.Lock()
	exec, ok := e.active[runID]
	e.mu.Unlock()

	if ok {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.Terminal() {
		return nil, fmt.Errorf("run %s is %s and not executing in this engine", runID, run.Status)
	}
	return run.Result(), nil
}

// Resume continues a previously persisted run from its last checkpoint.
// Completed, failed, and skipped steps keep their recorded results; only
// unfinished steps execute. Resuming a terminal run is a no-op.
func (e *Engine) Resume(ctx context.Context, runID id.RunID) error {
	e.mu.Lock()
	_, executing := e.active[runID]
	e.mu.Unlock()
	if executing {
		return nil
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	if run.Definition == nil {
		return fmt.Errorf("run %s has no definition: %w", runID, flowline.ErrStateCorrupt)
	}

	g, err := graph.Build(run.Definition, e.logger)
	if err != nil {
		return fmt.Errorf("resume run %s: %w", runID, err)
	}

	e.logger.Info("resuming run",
		slog.String("run_id", runID.String()),
		slog.String("workflow", run.Name),
		slog.Int("recorded_steps", len(run.StepResults)),
	)
	return e.launch(run, g)
}

// ResumeAll resumes every non-terminal run in the store. Called at
// startup for crash recovery. Runs are resumed concurrently but each
// failure is logged rather than aborting recovery of the rest.
func (e *Engine) ResumeAll(ctx context.Context) error {
	var runs []*workflow.Run
	for _, status := range []workflow.Status{workflow.StatusRunning, workflow.StatusPending} {
		batch, err := e.store.ListRuns(ctx, workflow.ListOpts{Status: status})
		if err != nil {
			return fmt.Errorf("list %s runs: %w", status, err)
		}
		runs = append(runs, batch...)
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(4)
	for _, run := range runs {
		grp.Go(func() error {
			if resumeErr := e.Resume(grpCtx, run.ID); resumeErr != nil {
				e.logger.Error("failed to resume run",
					slog.String("run_id", run.ID.String()),
					slog.String("error", resumeErr.Error()),
				)
			}
			return nil
		})
	}
	return grp.Wait()
}

// Cancel stops a run. Steps already in flight get the cancel grace
// period to wind down; no new steps are dispatched. Cancelling a
// terminal run returns ErrRunTerminal.
func (e *Engine) Cancel(ctx context.Context, runID id.RunID) error {
	e.mu.Lock()
	exec, ok := e.active[runID]
	e.mu.Unlock()

	if ok {
		exec.cancel()
		return nil
	}

	// Not executing here: cancel directly in the store.
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s is %s: %w", runID, run.Status, flowline.ErrRunTerminal)
	}

	run.Status = workflow.StatusCancelled
	run.Error = flowline.ErrRunCancelled.Error()
	run.Touch()
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update cancelled run %s: %w", runID, err)
	}
	e.extensions.EmitRunCancelled(ctx, run)
	return nil
}

// Status returns the persisted state of a run.
func (e *Engine) Status(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Close cancels all active runs, waits for their scheduling loops to
// finish, and notifies extensions of shutdown.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	execs := make([]*execution, 0, len(e.active))
	for _, exec := range e.active {
		execs = append(execs, exec)
	}
	e.mu.Unlock()

	for _, exec := range execs {
		exec.cancel()
	}
	for _, exec := range execs {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.extensions.EmitShutdown(ctx)
	return nil
}

// launch registers the run as active and starts its scheduling loop.
// The loop runs on a background context so it outlives the caller; use
// Cancel to stop it.
func (e *Engine) launch(run *workflow.Run, g *graph.Graph) error {
	runCtx, cancel := context.WithCancel(context.Background())
	exec := &execution{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("engine is closed")
	}
	if _, dup := e.active[run.ID]; dup {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", flowline.ErrRunAlreadyExists, run.ID)
	}
	e.active[run.ID] = exec
	e.mu.Unlock()

	go func() {
		defer close(exec.done)
		defer cancel()
		defer func() {
			e.mu.Lock()
			delete(e.active, run.ID)
			e.mu.Unlock()
		}()
		e.execute(runCtx, run, g)
	}()
	return nil
}
