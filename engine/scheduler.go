package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/agent"
	"github.com/flowline-dev/flowline/cond"
	"github.com/flowline-dev/flowline/graph"
	"github.com/flowline-dev/flowline/workflow"
)

// execute drives one run to a terminal status. It is the only goroutine
// that mutates the run: step goroutines report results over a channel,
// and each result is recorded and checkpointed here before the next
// dispatch decision, so persisted checkpoints are strictly ordered.
func (e *Engine) execute(ctx context.Context, run *workflow.Run, g *graph.Graph) {
	logger := e.logger.With(
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Name),
	)

	// Store writes must survive cancellation: a cancelled run still has
	// its terminal state persisted.
	persistCtx := context.WithoutCancel(ctx)

	start := time.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = workflow.StatusRunning
	run.Touch()
	if err := e.store.UpdateRun(persistCtx, run); err != nil {
		logger.Error("failed to mark run running", slog.String("error", err.Error()))
	}
	e.extensions.EmitRunStarted(ctx, run)
	logger.Info("run started", slog.Int("steps", g.Len()))

	// Steps invoke agents on a child context so that a global timeout
	// tears down in-flight work without conflating it with Cancel.
	invokeCtx, cancelInvoke := context.WithCancel(ctx)
	defer cancelInvoke()

	var globalTimer <-chan time.Time
	if e.config.GlobalTimeout > 0 {
		t := time.NewTimer(e.config.GlobalTimeout)
		defer t.Stop()
		globalTimer = t.C
	}

	maxConc := e.config.MaxConcurrentSteps
	if maxConc < 1 {
		maxConc = 1
	}

	results := make(chan *workflow.StepResult)
	inFlight := 0
	dispatched := make(map[string]bool, g.Len())
	for stepID := range run.StepResults {
		dispatched[stepID] = true
	}
	poisoned := derivePoisoned(run, g)

	ctxDone := ctx.Done()
	var timedOut, cancelled bool

	for {
		if !timedOut && !cancelled {
			e.dispatch(ctx, invokeCtx, run, g, dispatched, poisoned, &inFlight, maxConc, results, logger)
		}

		if inFlight == 0 && (timedOut || cancelled || len(run.StepResults) == g.Len()) {
			break
		}

		select {
		case res := <-results:
			inFlight--
			e.record(persistCtx, run, g, poisoned, res, logger)

		case <-globalTimer:
			timedOut = true
			globalTimer = nil
			cancelInvoke()
			logger.Warn("run exceeded global timeout",
				slog.Duration("timeout", e.config.GlobalTimeout))

		case <-ctxDone:
			cancelled = true
			ctxDone = nil
			cancelInvoke()
			logger.Info("run cancelled, draining in-flight steps",
				slog.Int("in_flight", inFlight))
		}
	}

	e.finalize(persistCtx, run, start, timedOut, cancelled, logger)
}

// dispatch starts every ready step. Propagated skips are recorded
// synchronously (they may unblock further steps, so the scan repeats
// until it makes no progress); agent invocations are bounded by maxConc.
func (e *Engine) dispatch(
	ctx, invokeCtx context.Context,
	run *workflow.Run,
	g *graph.Graph,
	dispatched map[string]bool,
	poisoned workflow.StepSet,
	inFlight *int,
	maxConc int,
	results chan<- *workflow.StepResult,
	logger *slog.Logger,
) {
	persistCtx := context.WithoutCancel(ctx)
	progress := true
	for progress {
		progress = false
		for _, layer := range g.Layers() {
			for _, stepID := range layer {
				if dispatched[stepID] || !ready(run, g, stepID) {
					continue
				}

				step := g.Step(stepID)
				if g.Condition(stepID) == nil && upstreamPoisoned(g, stepID, poisoned) {
					// Failure propagation: never invoked, recorded at once.
					now := time.Now().UTC()
					res := &workflow.StepResult{
						StepID:     stepID,
						Outcome:    workflow.OutcomeSkipped,
						StartedAt:  now,
						FinishedAt: now,
					}
					dispatched[stepID] = true
					e.record(persistCtx, run, g, poisoned, res, logger)
					e.extensions.EmitStepSkipped(ctx, run, stepID, agent.SkipReasonUpstream)
					progress = true
					continue
				}

				if *inFlight >= maxConc {
					continue
				}
				dispatched[stepID] = true
				*inFlight++

				// The runner reads run state for condition evaluation;
				// hand it a snapshot so the loop's writes never race.
				snap := run.Snapshot()
				go func(step *workflow.Step, condition *cond.Expr) {
					results <- e.runner.Run(invokeCtx, snap, step, condition)
				}(step, g.Condition(stepID))
			}
		}
	}
}

// record stores a terminal step result, updates failure propagation
// state, and checkpoints the run.
func (e *Engine) record(
	persistCtx context.Context,
	run *workflow.Run,
	g *graph.Graph,
	poisoned workflow.StepSet,
	res *workflow.StepResult,
	logger *slog.Logger,
) {
	run.Record(res)

	switch {
	case res.Outcome == workflow.OutcomeFailure:
		poisoned.Add(res.StepID)
	case res.Outcome == workflow.OutcomeSkipped && g.Condition(res.StepID) == nil:
		// Propagated skip: poisons unconditioned dependents in turn.
		poisoned.Add(res.StepID)
	}

	ckpt := workflow.NewCheckpoint(run, res.StepID)
	if err := e.store.SaveCheckpoint(persistCtx, ckpt); err != nil {
		logger.Error("failed to save checkpoint",
			slog.String("step_id", res.StepID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.store.UpdateRun(persistCtx, run); err != nil {
		logger.Error("failed to persist run state",
			slog.String("step_id", res.StepID),
			slog.String("error", err.Error()),
		)
	}

	logger.Debug("step recorded",
		slog.String("step_id", res.StepID),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("recorded", len(run.StepResults)),
		slog.Int("total", g.Len()),
	)
}

// finalize computes and persists the run's terminal status.
func (e *Engine) finalize(persistCtx context.Context, run *workflow.Run, start time.Time, timedOut, cancelled bool, logger *slog.Logger) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	elapsed := time.Since(start)

	switch {
	case cancelled:
		run.Status = workflow.StatusCancelled
		run.Error = flowline.ErrRunCancelled.Error()
	case timedOut:
		run.Status = workflow.StatusFailed
		run.Error = flowline.ErrRunTimeout.Error()
	case len(run.Failed) > 0:
		run.Status = workflow.StatusFailed
		run.Error = fmt.Sprintf("%d step(s) failed", len(run.Failed))
	default:
		run.Status = workflow.StatusCompleted
	}
	run.Touch()

	if err := e.store.UpdateRun(persistCtx, run); err != nil {
		logger.Error("failed to persist terminal run state", slog.String("error", err.Error()))
	}

	switch run.Status {
	case workflow.StatusCancelled:
		e.extensions.EmitRunCancelled(persistCtx, run)
	case workflow.StatusFailed:
		e.extensions.EmitRunFailed(persistCtx, run, fmt.Errorf("%s", run.Error))
	default:
		e.extensions.EmitRunCompleted(persistCtx, run, elapsed)
	}

	logger.Info("run finished",
		slog.String("status", string(run.Status)),
		slog.Duration("elapsed", elapsed),
		slog.Int("completed", len(run.Completed)),
		slog.Int("failed", len(run.Failed)),
		slog.Int("skipped", len(run.Skipped)),
	)
}

// ready reports whether every step this one waits on (declared
// dependencies plus condition references) has a recorded result.
func ready(run *workflow.Run, g *graph.Graph, stepID string) bool {
	for _, dep := range g.WaitsOn(stepID) {
		if _, ok := run.StepResults[dep]; !ok {
			return false
		}
	}
	return true
}

// upstreamPoisoned reports whether any declared dependency of the step
// is in the poisoned set. Only depends_on edges propagate failure;
// condition references never do.
func upstreamPoisoned(g *graph.Graph, stepID string, poisoned workflow.StepSet) bool {
	for _, dep := range g.Dependencies(stepID) {
		if poisoned.Has(dep) {
			return true
		}
	}
	return false
}

// derivePoisoned reconstructs the failure propagation set from recorded
// results, so a resumed run propagates exactly as the original would
// have. A step is poisoned if it failed, or if it is an unconditioned
// step that was skipped — unconditioned steps are only ever skipped by
// propagation, while conditioned steps always evaluate their condition.
func derivePoisoned(run *workflow.Run, g *graph.Graph) workflow.StepSet {
	poisoned := make(workflow.StepSet)
	for stepID := range run.Failed {
		poisoned.Add(stepID)
	}
	for stepID := range run.Skipped {
		if g.Condition(stepID) == nil {
			poisoned.Add(stepID)
		}
	}
	return poisoned
}
