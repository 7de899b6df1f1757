package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/backoff"
	"github.com/flowline-dev/flowline/cond"
	"github.com/flowline-dev/flowline/ext"
	"github.com/flowline-dev/flowline/middleware"
	"github.com/flowline-dev/flowline/workflow"
)

// Skip reasons reported through the StepSkipped lifecycle hook.
const (
	SkipReasonCondition = "condition"
	SkipReasonUpstream  = "upstream"
)

// Runner executes a single step: it evaluates the step's condition,
// resolves the agent invoker, and drives the invocation through the
// middleware chain with timeout enforcement and retries.
//
// The runner always returns a terminal StepResult — failures are
// recorded in the result, never surfaced as a Go error, so the
// scheduling loop treats every completed step uniformly.
type Runner struct {
	agents      *Registry
	extensions  *ext.Registry
	backoff     backoff.Strategy
	mw          middleware.Middleware
	logger      *slog.Logger
	cancelGrace time.Duration
}

// NewRunner creates a Runner with the given dependencies.
func NewRunner(
	agents *Registry,
	extensions *ext.Registry,
	bo backoff.Strategy,
	logger *slog.Logger,
	cancelGrace time.Duration,
	mws ...middleware.Middleware,
) *Runner {
	if bo == nil {
		bo = backoff.Default()
	}
	return &Runner{
		agents:      agents,
		extensions:  extensions,
		backoff:     bo,
		mw:          middleware.Chain(mws...),
		logger:      logger,
		cancelGrace: cancelGrace,
	}
}

// runOutcomes adapts recorded step results to condition evaluation.
// A skipped step is reported as absent: its ".success" evaluates false
// and its ".failed" evaluates true, same as a step that never ran.
type runOutcomes struct {
	run *workflow.Run
}

func (o runOutcomes) Outcome(stepID string) (bool, bool) {
	res, ok := o.run.StepResults[stepID]
	if !ok || res.Outcome == workflow.OutcomeSkipped {
		return false, false
	}
	return res.Outcome == workflow.OutcomeSuccess, true
}

// Run executes one step to a terminal result. The condition, if any,
// is evaluated against the run's recorded outcomes first; a false
// condition skips the step without invoking any agent.
//
// The caller guarantees that every step the condition references (and
// every declared dependency) already has a recorded result.
func (r *Runner) Run(ctx context.Context, run *workflow.Run, step *workflow.Step, condition *cond.Expr) *workflow.StepResult {
	result := &workflow.StepResult{
		StepID:    step.ID,
		StartedAt: time.Now().UTC(),
	}

	if condition != nil {
		pass, degraded := condition.EvalReport(runOutcomes{run: run})
		for _, ref := range degraded {
			r.logger.Warn("condition references step with no recorded outcome",
				slog.String("run_id", run.ID.String()),
				slog.String("step_id", step.ID),
				slog.String("reference", ref),
			)
		}
		if !pass {
			r.logger.Info("step skipped: condition false",
				slog.String("run_id", run.ID.String()),
				slog.String("step_id", step.ID),
				slog.String("condition", condition.String()),
			)
			result.Outcome = workflow.OutcomeSkipped
			result.FinishedAt = time.Now().UTC()
			r.extensions.EmitStepSkipped(ctx, run, step.ID, SkipReasonCondition)
			return result
		}
	}

	invoker, ok := r.agents.Get(step.AgentType)
	if !ok {
		result.Outcome = workflow.OutcomeFailure
		result.Error = fmt.Errorf("%w: %q", flowline.ErrAgentNotFound, step.AgentType).Error()
		result.FinishedAt = time.Now().UTC()
		r.extensions.EmitStepFailed(ctx, run, step.ID, fmt.Errorf("%w: %q", flowline.ErrAgentNotFound, step.AgentType))
		return result
	}

	r.extensions.EmitStepStarted(ctx, run, step.ID)

	// max_retries bounds the retries, not the attempts: zero means the
	// step is invoked exactly once even with retry_on_failure set.
	maxAttempts := 1
	if step.RetryOnFailure && step.MaxRetries > 0 {
		maxAttempts += step.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.AttemptCount = attempt

		out, err := r.invoke(ctx, run, step, attempt, invoker)
		if err == nil && out != nil && out.Success {
			result.Outcome = workflow.OutcomeSuccess
			result.Output = out.Output
			result.FinishedAt = time.Now().UTC()
			r.extensions.EmitStepCompleted(ctx, run, step.ID, result.FinishedAt.Sub(result.StartedAt))
			return result
		}

		lastErr = invocationError(step, out, err)

		// Cancellation and timeout are not retried: the deadline has
		// passed or the run is being torn down.
		if ctx.Err() != nil || isFatal(err) {
			break
		}

		if attempt < maxAttempts {
			delay := r.backoff.Delay(attempt)
			r.logger.Info("step retrying",
				slog.String("run_id", run.ID.String()),
				slog.String("step_id", step.ID),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			r.extensions.EmitStepRetrying(ctx, run, step.ID, attempt, delay)

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					lastErr = fmt.Errorf("%w: %s", flowline.ErrStepCancelled, step.ID)
					attempt = maxAttempts // stop retrying
				}
			}
		}
	}

	result.Outcome = workflow.OutcomeFailure
	result.Error = lastErr.Error()
	result.FinishedAt = time.Now().UTC()
	r.extensions.EmitStepFailed(ctx, run, step.ID, lastErr)
	return result
}

// invokeResult carries the invoker's return values across the goroutine
// boundary used for deadline enforcement.
type invokeResult struct {
	out *Outcome
	err error
}

// invoke runs one agent invocation through the middleware chain. The
// step's timeout is enforced here, not only via context: the chain runs
// in its own goroutine, and an invoker that ignores cancellation is
// abandoned after the cancel grace period rather than hanging the run.
func (r *Runner) invoke(ctx context.Context, run *workflow.Run, step *workflow.Step, attempt int, invoker Invoker) (*Outcome, error) {
	inv := &middleware.Invocation{
		RunID:   run.ID,
		Step:    step,
		Attempt: attempt,
	}

	ictx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan invokeResult, 1)
	go func() {
		var out *Outcome
		err := r.mw(ictx, inv, func(ctx context.Context) error {
			var invokeErr error
			out, invokeErr = invoker.Invoke(ctx, step.AgentType, step.Instructions)
			return invokeErr
		})
		ch <- invokeResult{out: out, err: err}
	}()

	var deadline <-chan time.Time
	if step.Timeout > 0 {
		timer := time.NewTimer(step.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case res := <-ch:
		return res.out, res.err

	case <-deadline:
		cancel()
		if _, ok := r.await(ch); !ok {
			r.logger.Warn("agent invoker ignored cancellation, abandoning",
				slog.String("run_id", run.ID.String()),
				slog.String("step_id", step.ID),
				slog.Duration("timeout", step.Timeout),
			)
		}
		return nil, fmt.Errorf("%w: step %s exceeded %s", flowline.ErrStepTimeout, step.ID, step.Timeout)

	case <-ctx.Done():
		cancel()
		if _, ok := r.await(ch); !ok {
			r.logger.Warn("agent invoker ignored cancellation, abandoning",
				slog.String("run_id", run.ID.String()),
				slog.String("step_id", step.ID),
			)
		}
		return nil, fmt.Errorf("%w: %s", flowline.ErrStepCancelled, step.ID)
	}
}

// await gives a cancelled invoker the grace period to return.
func (r *Runner) await(ch <-chan invokeResult) (invokeResult, bool) {
	if r.cancelGrace <= 0 {
		select {
		case res := <-ch:
			return res, true
		default:
			return invokeResult{}, false
		}
	}
	select {
	case res := <-ch:
		return res, true
	case <-time.After(r.cancelGrace):
		return invokeResult{}, false
	}
}

// invocationError normalizes the (Outcome, error) pair into one error.
func invocationError(step *workflow.Step, out *Outcome, err error) error {
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("agent %q returned no outcome for step %s", step.AgentType, step.ID)
	}
	if out.Error != "" {
		return fmt.Errorf("agent %q reported failure: %s", step.AgentType, out.Error)
	}
	return fmt.Errorf("agent %q reported failure for step %s", step.AgentType, step.ID)
}

// isFatal reports whether the invocation error precludes a retry.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, flowline.ErrStepTimeout) ||
		errors.Is(err, flowline.ErrStepCancelled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
