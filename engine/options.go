package engine

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowline-dev/flowline/backoff"
	"github.com/flowline-dev/flowline/ext"
	"github.com/flowline-dev/flowline/middleware"
)

// instrumentationName is the scope name for engine-owned telemetry.
const instrumentationName = "github.com/flowline-dev/flowline"

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the structured logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("engine: nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithMaxConcurrentSteps bounds how many steps of one run may execute
// at the same time.
func WithMaxConcurrentSteps(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("engine: max concurrent steps must be >= 1, got %d", n)
		}
		e.config.MaxConcurrentSteps = n
		return nil
	}
}

// WithGlobalTimeout bounds the wall-clock duration of a whole run.
// A run that exceeds it fails with ErrRunTimeout. Zero disables the
// limit.
func WithGlobalTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("engine: global timeout must be >= 0, got %s", d)
		}
		e.config.GlobalTimeout = d
		return nil
	}
}

// WithCancelGrace sets how long in-flight agent invocations get to wind
// down after cancellation before being abandoned.
func WithCancelGrace(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("engine: cancel grace must be >= 0, got %s", d)
		}
		e.config.CancelGrace = d
		return nil
	}
}

// WithBackoff sets the retry delay strategy for step retries. The
// default is backoff.None: retries fire immediately.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) error {
		if s == nil {
			return fmt.Errorf("engine: nil backoff strategy")
		}
		e.backoff = s
		return nil
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) error {
		if x == nil {
			return fmt.Errorf("engine: nil extension")
		}
		e.pendingExts = append(e.pendingExts, x)
		return nil
	}
}

// WithMiddleware appends middleware to the step invocation chain, inside
// the engine's built-in Recover and Timeout middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) error {
		e.userMW = append(e.userMW, mws...)
		return nil
	}
}

// WithTracerProvider wraps every step invocation in an OpenTelemetry
// span from the given provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) error {
		if tp == nil {
			return fmt.Errorf("engine: nil tracer provider")
		}
		e.userMW = append(e.userMW, middleware.TracingWithTracer(tp.Tracer(instrumentationName)))
		return nil
	}
}

// WithMeterProvider records step invocation metrics through the given
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) error {
		if mp == nil {
			return fmt.Errorf("engine: nil meter provider")
		}
		e.userMW = append(e.userMW, middleware.MetricsWithMeter(mp.Meter(instrumentationName)))
		return nil
	}
}
