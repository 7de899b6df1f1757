package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		logger.Info("step invocation started",
			slog.String("step_id", inv.Step.ID),
			slog.String("run_id", inv.RunID.String()),
			slog.String("agent_type", inv.Step.AgentType),
			slog.Int("attempt", inv.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step invocation failed",
				slog.String("step_id", inv.Step.ID),
				slog.String("run_id", inv.RunID.String()),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step invocation completed",
				slog.String("step_id", inv.Step.ID),
				slog.String("run_id", inv.RunID.String()),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
