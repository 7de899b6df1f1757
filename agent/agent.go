// Package agent defines the contract between the workflow engine and the
// agents that execute steps, and provides the Runner that drives a single
// step invocation through condition evaluation, middleware, timeout
// enforcement, and retries.
//
// Flowline never interprets step instructions or agent output; both are
// opaque JSON carried between the definition and the invoker.
package agent

import (
	"context"
	"encoding/json"
)

// Outcome is what an agent reports back from one invocation.
//
// The (Outcome, error) pair returned by an Invoker distinguishes two
// failure planes: a non-nil error means the invocation itself broke
// (transport, process, panic), while Success=false means the agent ran
// and reported that it could not do the work. The step runner treats
// both as step failure.
type Outcome struct {
	Success bool            `json:"success"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Invoker executes one agent invocation. Implementations must honor
// context cancellation; an invoker that ignores ctx is abandoned by the
// runner once the step's deadline plus the cancel grace period expires.
type Invoker interface {
	Invoke(ctx context.Context, agentType string, instructions json.RawMessage) (*Outcome, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentType string, instructions json.RawMessage) (*Outcome, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, agentType string, instructions json.RawMessage) (*Outcome, error) {
	return f(ctx, agentType, instructions)
}
