// Package middleware provides composable middleware for step execution.
//
// A [Middleware] is a function that wraps a step invocation handler.
// Middleware are composed into a chain using [Chain] and applied around
// every agent invocation. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs step id, attempt, duration, and outcome at each invocation
//   - [Recover] — catches panics in the agent invoker and converts them to errors
//   - [Timeout] — cancels the invocation context after the step's configured timeout
//   - [Tracing] — wraps the invocation in an OpenTelemetry span
//   - [Metrics] — records per-step duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *middleware.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
