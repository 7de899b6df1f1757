// Package graph turns a workflow definition into a validated dependency
// graph: it resolves every declared dependency, rejects cycles, parses
// and validates step conditions, and computes topological execution
// layers for the scheduler.
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/flowline-dev/flowline/cond"
	"github.com/flowline-dev/flowline/workflow"
)

// UnknownStepError reports a depends_on reference to a step id that does
// not exist in the definition.
type UnknownStepError struct {
	Workflow string
	StepID   string
	Missing  string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("graph: workflow %q step %q depends on unknown step %q",
		e.Workflow, e.StepID, e.Missing)
}

// CycleError reports a dependency cycle, naming the step sequence that
// forms it (first and last entries are the same step).
type CycleError struct {
	Workflow string
	Cycle    []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: workflow %q has a dependency cycle: %s",
		e.Workflow, strings.Join(e.Cycle, " -> "))
}

// Graph is the validated, immutable dependency graph of a definition.
//
// Two edge sets are kept. Declared edges come from depends_on and drive
// readiness and failure propagation. Wait edges are the declared edges
// plus every step id referenced by a step's condition: a conditioned
// step is not scheduled until everything its condition mentions is
// terminal, which makes condition evaluation deterministic regardless
// of which concurrently-ready step finishes first.
type Graph struct {
	def        *workflow.Definition
	steps      map[string]*workflow.Step
	deps       map[string][]string
	dependents map[string][]string
	waits      map[string][]string
	conditions map[string]*cond.Expr
	layers     [][]string
}

// Build validates the definition and constructs its graph. A nil logger
// falls back to slog.Default; the logger only carries non-fatal
// diagnostics (advisory parallel hints, condition references to ids
// outside the definition).
func Build(def *workflow.Definition, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		def:        def,
		steps:      make(map[string]*workflow.Step, len(def.Steps)),
		deps:       make(map[string][]string, len(def.Steps)),
		dependents: make(map[string][]string, len(def.Steps)),
		waits:      make(map[string][]string, len(def.Steps)),
		conditions: make(map[string]*cond.Expr),
	}
	for i := range def.Steps {
		s := &def.Steps[i]
		g.steps[s.ID] = s
	}

	// Resolve declared dependencies.
	for i := range def.Steps {
		s := &def.Steps[i]
		seen := make(map[string]struct{}, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return nil, &CycleError{Workflow: def.Name, Cycle: []string{s.ID, s.ID}}
			}
			if _, ok := g.steps[dep]; !ok {
				return nil, &UnknownStepError{Workflow: def.Name, StepID: s.ID, Missing: dep}
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			g.deps[s.ID] = append(g.deps[s.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], s.ID)
		}
	}

	// Parse conditions and derive wait edges from their references.
	for i := range def.Steps {
		s := &def.Steps[i]
		waitSet := make(map[string]struct{}, len(g.deps[s.ID]))
		for _, dep := range g.deps[s.ID] {
			waitSet[dep] = struct{}{}
		}

		if s.Condition != "" {
			expr, err := cond.Parse(s.Condition)
			if err != nil {
				return nil, fmt.Errorf("graph: workflow %q step %q condition: %w", def.Name, s.ID, err)
			}
			g.conditions[s.ID] = expr

			for _, ref := range expr.References() {
				if ref == s.ID {
					return nil, &CycleError{Workflow: def.Name, Cycle: []string{s.ID, s.ID}}
				}
				if _, ok := g.steps[ref]; !ok {
					// Evaluates as an undefined reference at run time;
					// legal, but worth surfacing.
					logger.Warn("condition references step outside definition",
						slog.String("workflow", def.Name),
						slog.String("step", s.ID),
						slog.String("reference", ref),
					)
					continue
				}
				waitSet[ref] = struct{}{}
			}
		}

		waits := make([]string, 0, len(waitSet))
		for w := range waitSet {
			waits = append(waits, w)
		}
		sort.Strings(waits)
		g.waits[s.ID] = waits
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	if err := g.computeLayers(); err != nil {
		return nil, err
	}
	g.checkParallelHints(logger)

	return g, nil
}

// Definition returns the underlying definition.
func (g *Graph) Definition() *workflow.Definition { return g.def }

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.steps) }

// Step returns the step with the given id, or nil.
func (g *Graph) Step(stepID string) *workflow.Step { return g.steps[stepID] }

// Dependencies returns the declared depends_on set of a step.
func (g *Graph) Dependencies(stepID string) []string { return g.deps[stepID] }

// Dependents returns the steps that declare stepID as a dependency.
func (g *Graph) Dependents(stepID string) []string { return g.dependents[stepID] }

// WaitsOn returns the scheduling edges of a step: declared dependencies
// plus condition references.
func (g *Graph) WaitsOn(stepID string) []string { return g.waits[stepID] }

// Condition returns the parsed condition of a step, or nil when the
// step is unconditioned.
func (g *Graph) Condition(stepID string) *cond.Expr { return g.conditions[stepID] }

// Layers returns the topological layers: every step in layer k waits
// only on steps in layers < k. Steps sharing a layer have no edge
// between them in either direction.
func (g *Graph) Layers() [][]string { return g.layers }

// detectCycle runs a depth-first traversal over the wait edges,
// tracking in-progress and finished steps. A back-edge onto an
// in-progress step names the cycle.
func (g *Graph) detectCycle() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(g.steps))

	ids := g.sortedIDs()
	var stack []string

	var visit func(stepID string) *CycleError
	visit = func(stepID string) *CycleError {
		state[stepID] = inStack
		stack = append(stack, stepID)

		for _, dep := range g.waits[stepID] {
			switch state[dep] {
			case inStack:
				// Extract the cycle from the stack.
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				return &CycleError{Workflow: g.def.Name, Cycle: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[stepID] = done
		return nil
	}

	for _, stepID := range ids {
		if state[stepID] == unvisited {
			if err := visit(stepID); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeLayers repeatedly extracts all steps whose wait edges are
// already placed (Kahn's algorithm generalized to layers), then asserts
// the derived invariant that no wait edge connects two steps within the
// same layer.
func (g *Graph) computeLayers() error {
	placed := make(map[string]struct{}, len(g.steps))
	remaining := g.sortedIDs()

	for len(remaining) > 0 {
		var layer, next []string
		for _, stepID := range remaining {
			ready := true
			for _, dep := range g.waits[stepID] {
				if _, ok := placed[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, stepID)
			} else {
				next = append(next, stepID)
			}
		}

		if len(layer) == 0 {
			// Unreachable after detectCycle; guards against drift
			// between the two traversals.
			return fmt.Errorf("graph: workflow %q: no progress layering steps %v", g.def.Name, next)
		}

		for _, stepID := range layer {
			placed[stepID] = struct{}{}
		}
		g.layers = append(g.layers, layer)
		remaining = next
	}

	// Derived invariant: members of one layer are mutually unordered.
	for _, layer := range g.layers {
		members := make(map[string]struct{}, len(layer))
		for _, stepID := range layer {
			members[stepID] = struct{}{}
		}
		for _, stepID := range layer {
			for _, dep := range g.waits[stepID] {
				if _, same := members[dep]; same {
					return fmt.Errorf("graph: workflow %q: steps %q and %q share a layer but are ordered",
						g.def.Name, stepID, dep)
				}
			}
		}
	}
	return nil
}

// checkParallelHints warns about hints that contradict the dependency
// graph. The hint is advisory only: it never grants concurrency the
// graph forbids, and a contradicting hint is not an error.
func (g *Graph) checkParallelHints(logger *slog.Logger) {
	for _, stepID := range g.sortedIDs() {
		s := g.steps[stepID]
		for _, hinted := range s.ParallelHint {
			if _, ok := g.steps[hinted]; !ok {
				logger.Warn("parallel hint names unknown step",
					slog.String("workflow", g.def.Name),
					slog.String("step", stepID),
					slog.String("hint", hinted),
				)
				continue
			}
			if g.ordered(stepID, hinted) || g.ordered(hinted, stepID) {
				logger.Warn("parallel hint contradicts dependency graph; hint ignored",
					slog.String("workflow", g.def.Name),
					slog.String("step", stepID),
					slog.String("hint", hinted),
				)
			}
		}
	}
}

// ordered reports whether anc is an ancestor of stepID over wait edges.
func (g *Graph) ordered(stepID, anc string) bool {
	seen := make(map[string]struct{})
	var walk func(cur string) bool
	walk = func(cur string) bool {
		for _, dep := range g.waits[cur] {
			if dep == anc {
				return true
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			if walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(stepID)
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.steps))
	for stepID := range g.steps {
		ids = append(ids, stepID)
	}
	sort.Strings(ids)
	return ids
}
