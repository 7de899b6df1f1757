package ext

import (
	"context"
	"time"

	"github.com/flowline-dev/flowline/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a workflow run begins executing.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *workflow.Run) error
}

// RunCompleted is called after a run finishes with every step accounted for.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// RunFailed is called when a run fails terminally.
type RunFailed interface {
	OnRunFailed(ctx context.Context, r *workflow.Run, err error) error
}

// RunCancelled is called when a run is cancelled by the caller.
type RunCancelled interface {
	OnRunCancelled(ctx context.Context, r *workflow.Run) error
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepStarted is called when a step's agent invocation begins.
type StepStarted interface {
	OnStepStarted(ctx context.Context, r *workflow.Run, stepID string) error
}

// StepCompleted is called after a step finishes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, r *workflow.Run, stepID string, elapsed time.Duration) error
}

// StepFailed is called when a step fails with no retries remaining.
type StepFailed interface {
	OnStepFailed(ctx context.Context, r *workflow.Run, stepID string, err error) error
}

// StepSkipped is called when a step is skipped, either because its
// condition evaluated false or because an upstream dependency failed.
// The reason is one of "condition" or "upstream".
type StepSkipped interface {
	OnStepSkipped(ctx context.Context, r *workflow.Run, stepID, reason string) error
}

// StepRetrying is called when a step fails but is scheduled for retry.
type StepRetrying interface {
	OnStepRetrying(ctx context.Context, r *workflow.Run, stepID string, attempt int, delay time.Duration) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
