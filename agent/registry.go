package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry maps agent types to invokers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[string]Invoker),
	}
}

// Register binds an invoker to an agent type, replacing any previous
// binding for the same type.
func (r *Registry) Register(agentType string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[agentType] = inv
}

// RegisterFunc binds a plain function to an agent type.
func (r *Registry) RegisterFunc(agentType string, f InvokerFunc) {
	r.Register(agentType, f)
}

// RegisterTyped binds a typed invocation function to an agent type. The
// generic handler is wrapped in a closure that JSON-unmarshals the step
// instructions into T before calling the typed function.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterTyped[T any](r *Registry, agentType string, f func(ctx context.Context, instructions T) (*Outcome, error)) {
	r.Register(agentType, InvokerFunc(func(ctx context.Context, _ string, instructions json.RawMessage) (*Outcome, error) {
		var t T
		if len(instructions) > 0 {
			if err := json.Unmarshal(instructions, &t); err != nil {
				return nil, fmt.Errorf("unmarshal instructions for agent %q: %w", agentType, err)
			}
		}
		return f(ctx, t)
	}))
}

// Get returns the invoker for the given agent type.
// Returns false if no invoker is registered.
func (r *Registry) Get(agentType string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[agentType]
	return inv, ok
}

// Types returns all registered agent types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.invokers))
	for t := range r.invokers {
		types = append(types, t)
	}
	return types
}
