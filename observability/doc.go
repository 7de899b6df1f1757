// Package observability provides an OpenTelemetry metrics extension for
// flowline. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for run starts, completions, failures,
// cancellations, step outcomes, skips, and retries.
//
// For per-invocation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
