// Package workflow defines workflow definitions, runs, step results,
// checkpoints, and the persistence contract between the engine and its
// store backends.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Step is a single unit of work inside a workflow definition. It is bound
// to an agent type, an opaque instruction payload, and optional
// dependencies and a run condition.
type Step struct {
	// ID uniquely identifies the step within its definition.
	ID string `json:"id"`

	// AgentType names the agent capability that performs this step.
	// It is resolved by the caller-supplied agent registry; the engine
	// attaches no meaning to it.
	AgentType string `json:"agent_type"`

	// Description is a human-readable summary of the step.
	Description string `json:"description,omitempty"`

	// Instructions is the opaque payload passed to the agent.
	Instructions json.RawMessage `json:"instructions,omitempty"`

	// DependsOn lists step IDs that must reach a terminal outcome
	// before this step is considered for scheduling.
	DependsOn []string `json:"depends_on,omitempty"`

	// Condition is an optional boolean expression over prior step
	// outcomes (see the cond package). An empty condition means the
	// step always runs once its dependencies allow it.
	Condition string `json:"condition,omitempty"`

	// ParallelHint lists step IDs this step is declared non-blocking
	// with. Advisory only: real concurrency is derived from the
	// dependency graph, never from the hint.
	ParallelHint []string `json:"parallel_hint,omitempty"`

	// Timeout bounds a single agent invocation for this step. Zero
	// means no per-step timeout.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RetryOnFailure enables the retry loop on agent failure.
	RetryOnFailure bool `json:"retry_on_failure,omitempty"`

	// MaxRetries is the number of re-invocations after the initial
	// attempt. Only consulted when RetryOnFailure is set.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Definition is an immutable workflow template: a named, versioned,
// ordered list of steps. Definitions are produced by an external parser
// and accepted by the engine as in-memory structures.
type Definition struct {
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`
	Steps   []Step `json:"steps"`
}

// Validate checks the definition invariants that do not require graph
// construction: a non-empty name, at least one step, and unique,
// non-empty step IDs. Dependency resolution and cycle detection are the
// graph builder's job.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow: definition has no name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q: definition has no steps", d.Name)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %q: step %d has an empty id", d.Name, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("workflow %q: duplicate step id %q", d.Name, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// StepByID returns the step with the given ID, or nil.
func (d *Definition) StepByID(stepID string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}
