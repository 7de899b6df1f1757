package graph_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/flowline-dev/flowline/graph"
	"github.com/flowline-dev/flowline/workflow"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func step(id string, deps ...string) workflow.Step {
	return workflow.Step{ID: id, AgentType: "test", DependsOn: deps}
}

func def(name string, steps ...workflow.Step) *workflow.Definition {
	return &workflow.Definition{Name: name, Steps: steps}
}

func TestBuildLinear(t *testing.T) {
	g, err := graph.Build(def("linear", step("a"), step("b", "a"), step("c", "b")), discard())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	layers := g.Layers()
	if len(layers) != 3 {
		t.Fatalf("layers = %d, want 3", len(layers))
	}
	for i, want := range []string{"a", "b", "c"} {
		if len(layers[i]) != 1 || layers[i][0] != want {
			t.Errorf("layer %d = %v, want [%s]", i, layers[i], want)
		}
	}
}

func TestBuildNoDepsSingleLayer(t *testing.T) {
	g, err := graph.Build(def("flat", step("a"), step("b"), step("c"), step("d")), discard())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	layers := g.Layers()
	if len(layers) != 1 {
		t.Fatalf("layers = %d, want 1", len(layers))
	}
	if len(layers[0]) != 4 {
		t.Errorf("layer 0 has %d steps, want 4", len(layers[0]))
	}
}

func TestBuildDiamond(t *testing.T) {
	g, err := graph.Build(def("diamond",
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	), discard())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	layers := g.Layers()
	if len(layers) != 3 {
		t.Fatalf("layers = %d, want 3", len(layers))
	}
	if len(layers[1]) != 2 {
		t.Errorf("middle layer = %v, want [b c]", layers[1])
	}
	if got := g.Dependents("a"); len(got) != 2 {
		t.Errorf("Dependents(a) = %v, want 2 entries", got)
	}
}

func TestBuildCycle(t *testing.T) {
	_, err := graph.Build(def("cyclic",
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	), discard())

	var cycErr *graph.CycleError
	if !errors.As(err, &cycErr) {
		t.Fatalf("Build error = %v, want CycleError", err)
	}
	if len(cycErr.Cycle) < 3 {
		t.Errorf("cycle names %v, want the full step sequence", cycErr.Cycle)
	}
}

func TestBuildSelfDependency(t *testing.T) {
	_, err := graph.Build(def("selfdep", step("a", "a")), discard())

	var cycErr *graph.CycleError
	if !errors.As(err, &cycErr) {
		t.Fatalf("Build error = %v, want CycleError", err)
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	_, err := graph.Build(def("dangling", step("a"), step("b", "ghost")), discard())

	var unkErr *graph.UnknownStepError
	if !errors.As(err, &unkErr) {
		t.Fatalf("Build error = %v, want UnknownStepError", err)
	}
	if unkErr.StepID != "b" || unkErr.Missing != "ghost" {
		t.Errorf("error names step %q missing %q, want b/ghost", unkErr.StepID, unkErr.Missing)
	}
}

func TestBuildDuplicateStepID(t *testing.T) {
	if _, err := graph.Build(def("dup", step("a"), step("a")), discard()); err == nil {
		t.Fatal("expected error for duplicate step id")
	}
}

func TestBuildInvalidCondition(t *testing.T) {
	d := def("badcond", step("a"))
	d.Steps = append(d.Steps, workflow.Step{
		ID:        "b",
		AgentType: "test",
		DependsOn: []string{"a"},
		Condition: "a.success AND",
	})

	if _, err := graph.Build(d, discard()); err == nil {
		t.Fatal("expected error for unparseable condition")
	}
}

func TestConditionReferenceBecomesWaitEdge(t *testing.T) {
	// "b" declares no dependency on "a" but its condition mentions it;
	// the builder must order b after a so evaluation is deterministic.
	d := def("waitedge", step("a"))
	d.Steps = append(d.Steps, workflow.Step{
		ID:        "b",
		AgentType: "test",
		Condition: "NOT a.success",
	})

	g, err := graph.Build(d, discard())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	waits := g.WaitsOn("b")
	if len(waits) != 1 || waits[0] != "a" {
		t.Errorf("WaitsOn(b) = %v, want [a]", waits)
	}
	if deps := g.Dependencies("b"); len(deps) != 0 {
		t.Errorf("Dependencies(b) = %v, want none (condition refs are wait edges only)", deps)
	}
	if layers := g.Layers(); len(layers) != 2 {
		t.Errorf("layers = %v, want a before b", layers)
	}
}

func TestConditionCycleRejected(t *testing.T) {
	d := def("condcycle", step("a", "b"))
	d.Steps = append(d.Steps, workflow.Step{
		ID:        "b",
		AgentType: "test",
		Condition: "a.failed",
	})

	var cycErr *graph.CycleError
	if _, err := graph.Build(d, discard()); !errors.As(err, &cycErr) {
		t.Fatalf("Build error = %v, want CycleError over wait edges", err)
	}
}

func TestLayerInvariantNoIntraLayerEdges(t *testing.T) {
	g, err := graph.Build(def("wide",
		step("a"),
		step("b"),
		step("c", "a"),
		step("d", "a", "b"),
		step("e", "c", "d"),
	), discard())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for li, layer := range g.Layers() {
		members := make(map[string]bool, len(layer))
		for _, id := range layer {
			members[id] = true
		}
		for _, id := range layer {
			for _, dep := range g.WaitsOn(id) {
				if members[dep] {
					t.Errorf("layer %d contains ordered pair %s -> %s", li, dep, id)
				}
			}
		}
	}
}

func TestParallelHintIsAdvisory(t *testing.T) {
	// A hint naming a step it truly depends on is a warning, not an error.
	d := def("hinted", step("a"))
	d.Steps = append(d.Steps, workflow.Step{
		ID:           "b",
		AgentType:    "test",
		DependsOn:    []string{"a"},
		ParallelHint: []string{"a"},
	})

	g, err := graph.Build(d, discard())
	if err != nil {
		t.Fatalf("Build: %v (hints must never be fatal)", err)
	}
	if len(g.Layers()) != 2 {
		t.Errorf("layers = %v, hint must not override dependency order", g.Layers())
	}
}
