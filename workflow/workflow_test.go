package workflow_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/workflow"
)

func testDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name: "report",
		Steps: []workflow.Step{
			{ID: "gather", AgentType: "researcher"},
			{ID: "draft", AgentType: "writer", DependsOn: []string{"gather"}},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     *workflow.Definition
		wantErr string
	}{
		{
			name: "valid",
			def:  testDefinition(),
		},
		{
			name:    "no name",
			def:     &workflow.Definition{Steps: []workflow.Step{{ID: "a"}}},
			wantErr: "no name",
		},
		{
			name:    "no steps",
			def:     &workflow.Definition{Name: "empty"},
			wantErr: "no steps",
		},
		{
			name: "empty step id",
			def: &workflow.Definition{
				Name:  "bad",
				Steps: []workflow.Step{{ID: ""}},
			},
			wantErr: "empty id",
		},
		{
			name: "duplicate step id",
			def: &workflow.Definition{
				Name:  "bad",
				Steps: []workflow.Step{{ID: "a"}, {ID: "a"}},
			},
			wantErr: "duplicate step id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestStepByID(t *testing.T) {
	def := testDefinition()
	if s := def.StepByID("draft"); s == nil || s.AgentType != "writer" {
		t.Errorf("StepByID(draft) = %+v", s)
	}
	if s := def.StepByID("missing"); s != nil {
		t.Errorf("StepByID(missing) = %+v, want nil", s)
	}
}

func TestRunRecordUpdatesOutcomeSets(t *testing.T) {
	run := workflow.NewRun(testDefinition())
	if run.Status != workflow.StatusPending {
		t.Fatalf("new run status = %s, want pending", run.Status)
	}

	run.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeSuccess})
	run.Record(&workflow.StepResult{StepID: "draft", Outcome: workflow.OutcomeFailure, Error: "boom"})

	if !run.Completed.Has("gather") {
		t.Error("gather must be in the completed set")
	}
	if !run.Failed.Has("draft") {
		t.Error("draft must be in the failed set")
	}
	if run.Skipped.Has("gather") || run.Skipped.Has("draft") {
		t.Error("skipped set must stay empty")
	}
}

func TestRunSnapshotIsolation(t *testing.T) {
	run := workflow.NewRun(testDefinition())
	run.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeSuccess})

	snap := run.Snapshot()
	run.Record(&workflow.StepResult{StepID: "draft", Outcome: workflow.OutcomeSkipped})

	if len(snap.StepResults) != 1 {
		t.Errorf("snapshot sees %d results, want 1", len(snap.StepResults))
	}
	if snap.Skipped.Has("draft") {
		t.Error("later mutation leaked into the snapshot")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []workflow.Status{
		workflow.StatusCompleted, workflow.StatusFailed, workflow.StatusCancelled,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	open := []workflow.Status{
		workflow.StatusPending, workflow.StatusRunning, workflow.StatusPaused,
	}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestRunJSONRoundTrip(t *testing.T) {
	run := workflow.NewRun(testDefinition())
	run.Record(&workflow.StepResult{
		StepID:       "gather",
		Outcome:      workflow.OutcomeSuccess,
		Output:       json.RawMessage(`{"facts":3}`),
		AttemptCount: 2,
	})

	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got workflow.Run
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("ID = %s, want %s", got.ID, run.ID)
	}
	if got.Definition == nil || len(got.Definition.Steps) != 2 {
		t.Error("definition must survive the round trip")
	}
	if got.StepResults["gather"].AttemptCount != 2 {
		t.Error("step result must survive the round trip")
	}
	if !got.Completed.Has("gather") {
		t.Error("completed set must survive the round trip")
	}
}

func TestCheckpointCapturesState(t *testing.T) {
	run := workflow.NewRun(testDefinition())
	run.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeSuccess})

	cp := workflow.NewCheckpoint(run, "gather")
	if cp.RunID != run.ID || cp.StepID != "gather" {
		t.Errorf("checkpoint = %s/%s, want %s/gather", cp.RunID, cp.StepID, run.ID)
	}

	run.Record(&workflow.StepResult{StepID: "draft", Outcome: workflow.OutcomeSuccess})
	if len(cp.State.StepResults) != 1 {
		t.Error("checkpoint state must be a snapshot, not a live reference")
	}
}

func TestRegistryVersioning(t *testing.T) {
	reg := workflow.NewRegistry()

	v1 := testDefinition()
	if err := reg.Register(v1); err != nil {
		t.Fatalf("Register v1: %v", err)
	}

	v2 := testDefinition()
	v2.Version = 2
	v2.Steps = append(v2.Steps, workflow.Step{ID: "review", AgentType: "editor"})
	if err := reg.Register(v2); err != nil {
		t.Fatalf("Register v2: %v", err)
	}

	got, err := reg.Get("report")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 2 || len(got.Steps) != 3 {
		t.Errorf("Get returned version %d with %d steps, want version 2 with 3", got.Version, len(got.Steps))
	}

	got, err = reg.GetVersion("report", 1)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if got.Version != 1 || len(got.Steps) != 2 {
		t.Errorf("GetVersion(1) returned version %d with %d steps", got.Version, len(got.Steps))
	}

	if _, err := reg.Get("missing"); !errors.Is(err, flowline.ErrDefinitionNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrDefinitionNotFound", err)
	}
	if _, err := reg.GetVersion("report", 9); !errors.Is(err, flowline.ErrDefinitionNotFound) {
		t.Fatalf("GetVersion(9) = %v, want ErrDefinitionNotFound", err)
	}
}

func TestRegistryRejectsInvalidDefinition(t *testing.T) {
	reg := workflow.NewRegistry()
	if err := reg.Register(&workflow.Definition{Name: "empty"}); err == nil {
		t.Fatal("registering a definition without steps must fail")
	}
}

func TestRegistryReplaceSameVersion(t *testing.T) {
	reg := workflow.NewRegistry()

	first := testDefinition()
	if err := reg.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	second := testDefinition()
	second.Steps = second.Steps[:1]
	if err := reg.Register(second); err != nil {
		t.Fatalf("Register replacement: %v", err)
	}

	got, err := reg.Get("report")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Steps) != 1 {
		t.Errorf("replacement not applied: %d steps", len(got.Steps))
	}
}
