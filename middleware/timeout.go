package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that enforces the step's execution deadline.
// If the step has a non-zero Timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled
// and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		if inv.Step.Timeout > 0 {
			logger.Debug("step timeout set",
				slog.String("step_id", inv.Step.ID),
				slog.String("run_id", inv.RunID.String()),
				slog.Duration("timeout", inv.Step.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Step.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
