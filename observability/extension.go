package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowline-dev/flowline/ext"
	"github.com/flowline-dev/flowline/workflow"
)

const meterName = "github.com/flowline-dev/flowline/observability"

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.RunStarted    = (*MetricsExtension)(nil)
	_ ext.RunCompleted  = (*MetricsExtension)(nil)
	_ ext.RunFailed     = (*MetricsExtension)(nil)
	_ ext.RunCancelled  = (*MetricsExtension)(nil)
	_ ext.StepCompleted = (*MetricsExtension)(nil)
	_ ext.StepFailed    = (*MetricsExtension)(nil)
	_ ext.StepSkipped   = (*MetricsExtension)(nil)
	_ ext.StepRetrying  = (*MetricsExtension)(nil)
)

// MetricsExtension records engine-wide lifecycle metrics. Register it on
// the engine to automatically track run throughput, failure rates, step
// outcomes, skips, and retries. Counters carry the workflow name as an
// attribute; skips also carry the skip reason.
type MetricsExtension struct {
	runsStarted    metric.Int64Counter
	runsCompleted  metric.Int64Counter
	runsFailed     metric.Int64Counter
	runsCancelled  metric.Int64Counter
	runDuration    metric.Float64Histogram
	stepsCompleted metric.Int64Counter
	stepsFailed    metric.Int64Counter
	stepsSkipped   metric.Int64Counter
	stepsRetried   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use a manual-reader meter in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var err error

	if m.runsStarted, err = meter.Int64Counter("flowline.run.started",
		metric.WithDescription("Workflow runs started"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.runsCompleted, err = meter.Int64Counter("flowline.run.completed",
		metric.WithDescription("Workflow runs completed successfully"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.runsFailed, err = meter.Int64Counter("flowline.run.failed",
		metric.WithDescription("Workflow runs failed"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.runsCancelled, err = meter.Int64Counter("flowline.run.cancelled",
		metric.WithDescription("Workflow runs cancelled"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("flowline.run.duration",
		metric.WithDescription("Workflow run duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create histogram: %w", err)
	}
	if m.stepsCompleted, err = meter.Int64Counter("flowline.step.completed",
		metric.WithDescription("Steps completed successfully"),
		metric.WithUnit("{step}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.stepsFailed, err = meter.Int64Counter("flowline.step.failed",
		metric.WithDescription("Steps failed with no retries remaining"),
		metric.WithUnit("{step}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.stepsSkipped, err = meter.Int64Counter("flowline.step.skipped",
		metric.WithDescription("Steps skipped by condition or upstream failure"),
		metric.WithUnit("{step}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}
	if m.stepsRetried, err = meter.Int64Counter("flowline.step.retried",
		metric.WithDescription("Step retry attempts scheduled"),
		metric.WithUnit("{step}")); err != nil {
		return nil, fmt.Errorf("flowline/observability: create counter: %w", err)
	}

	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func workflowAttrs(r *workflow.Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow", r.Name))
}

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	m.runsStarted.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	m.runsCompleted.Add(ctx, 1, workflowAttrs(r))
	m.runDuration.Record(ctx, elapsed.Seconds(), workflowAttrs(r))
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.runsFailed.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnRunCancelled implements ext.RunCancelled.
func (m *MetricsExtension) OnRunCancelled(ctx context.Context, r *workflow.Run) error {
	m.runsCancelled.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// ── Step lifecycle hooks ────────────────────────────

// OnStepCompleted implements ext.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, r *workflow.Run, _ string, _ time.Duration) error {
	m.stepsCompleted.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, r *workflow.Run, _ string, _ error) error {
	m.stepsFailed.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnStepSkipped implements ext.StepSkipped.
func (m *MetricsExtension) OnStepSkipped(ctx context.Context, r *workflow.Run, _, reason string) error {
	m.stepsSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Name),
		attribute.String("reason", reason),
	))
	return nil
}

// OnStepRetrying implements ext.StepRetrying.
func (m *MetricsExtension) OnStepRetrying(ctx context.Context, r *workflow.Run, _ string, _ int, _ time.Duration) error {
	m.stepsRetried.Add(ctx, 1, workflowAttrs(r))
	return nil
}
