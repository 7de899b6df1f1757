// Package ext defines the extension system for Flowline.
//
// Extensions are notified of run and step lifecycle events and can react
// to them — recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
//	    log.Printf("run %s completed in %s", r.ID, elapsed)
//	    return nil
//	}
//
// # Run Lifecycle Hooks
//
//   - [RunStarted] — a workflow run began executing
//   - [RunCompleted] — the run finished with every step accounted for
//   - [RunFailed] — the run failed terminally
//   - [RunCancelled] — the run was cancelled by the caller
//
// # Step Lifecycle Hooks
//
//   - [StepStarted] — a step's agent invocation began
//   - [StepCompleted] — a step finished successfully
//   - [StepFailed] — a step failed with no retries remaining
//   - [StepSkipped] — a step was skipped (condition false or upstream failure)
//   - [StepRetrying] — a step failed but will be retried
//
// # Other Hooks
//
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
