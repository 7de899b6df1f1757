package cond_test

import (
	"testing"

	"github.com/flowline-dev/flowline/cond"
)

func TestEval(t *testing.T) {
	outcomes := cond.MapOutcomes{
		"analyze": true,
		"lint":    false,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"analyze.success", true},
		{"analyze.failed", false},
		{"lint.success", false},
		{"lint.failed", true},
		{"NOT analyze.success", false},
		{"NOT lint.success", true},
		{"analyze.success AND lint.failed", true},
		{"analyze.success AND lint.success", false},
		{"analyze.failed OR lint.failed", true},
		{"analyze.failed OR lint.success", false},
		{"(analyze.success)", true},
		{"NOT (analyze.success AND lint.success)", true},
		// Precedence: NOT binds tighter than AND, AND tighter than OR.
		{"NOT lint.success AND analyze.success", true},
		{"lint.success OR analyze.success AND lint.failed", true},
		// Lowercase connectives are accepted.
		{"analyze.success and lint.failed", true},
		{"not lint.success", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := cond.Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			if got := expr.Eval(outcomes); got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalUnknownStep(t *testing.T) {
	// A reference to a step with no recorded outcome: .success is false
	// and .failed is true by definition, never an error.
	outcomes := cond.MapOutcomes{}

	expr, err := cond.Parse("ghost.success")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, missing := expr.EvalReport(outcomes)
	if got {
		t.Error("ghost.success = true, want false")
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Errorf("missing = %v, want [ghost]", missing)
	}

	expr, err = cond.Parse("ghost.failed")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !expr.Eval(outcomes) {
		t.Error("ghost.failed = false, want true")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"analyze",
		"analyze.",
		"analyze.outcome",
		"analyze.success AND",
		"AND analyze.success",
		"(analyze.success",
		"analyze.success)",
		"analyze.success lint.success",
		"analyze.success && lint.success",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if _, err := cond.Parse(expr); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", expr)
			}
		})
	}
}

func TestReferences(t *testing.T) {
	expr, err := cond.Parse("b.success AND (a.failed OR NOT c.success) OR a.success")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	refs := expr.References()
	want := []string{"a", "b", "c"}
	if len(refs) != len(want) {
		t.Fatalf("References() = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("References()[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestEvalIsPure(t *testing.T) {
	outcomes := cond.MapOutcomes{"a": true}
	expr, err := cond.Parse("a.success")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for range 3 {
		if !expr.Eval(outcomes) {
			t.Fatal("repeated Eval changed result")
		}
	}
}
