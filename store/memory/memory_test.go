package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/flowline-dev/flowline"
	"github.com/flowline-dev/flowline/id"
	"github.com/flowline-dev/flowline/store/memory"
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

func TestCreateAndGetRun(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != run.ID || got.Name != "report" {
		t.Errorf("got run %s/%s, want %s/report", got.ID, got.Name, run.ID)
	}
	if got.Definition == nil || len(got.Definition.Steps) != 2 {
		t.Error("definition must round-trip with the run")
	}
}

func TestCreateRunDuplicate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, run); !errors.Is(err, flowline.ErrRunAlreadyExists) {
		t.Fatalf("second CreateRun = %v, want ErrRunAlreadyExists", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.GetRun(context.Background(), id.NewRunID()); !errors.Is(err, flowline.ErrRunNotFound) {
		t.Fatalf("GetRun = %v, want ErrRunNotFound", err)
	}
}

func TestUpdateRun(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Status = workflow.StatusRunning
	run.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeSuccess})
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != workflow.StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
	if !got.Completed.Has("gather") {
		t.Error("completed set must round-trip")
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	s := memory.New()
	run := workflow.NewRun(testDefinition())
	if err := s.UpdateRun(context.Background(), run); !errors.Is(err, flowline.ErrRunNotFound) {
		t.Fatalf("UpdateRun = %v, want ErrRunNotFound", err)
	}
}

func TestGetRunReturnsIsolatedCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, _ := s.GetRun(ctx, run.ID)
	got.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeFailure})

	again, _ := s.GetRun(ctx, run.ID)
	if len(again.StepResults) != 0 {
		t.Error("mutating a returned run must not leak into the store")
	}
}

func TestListRuns(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var runs []*workflow.Run
	for range 3 {
		run := workflow.NewRun(testDefinition())
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		runs = append(runs, run)
	}
	runs[1].Status = workflow.StatusCompleted
	if err := s.UpdateRun(ctx, runs[1]); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	all, err := s.ListRuns(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	completed, err := s.ListRuns(ctx, workflow.ListOpts{Status: workflow.StatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != runs[1].ID {
		t.Errorf("status filter returned %d runs", len(completed))
	}

	limited, err := s.ListRuns(ctx, workflow.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit/offset returned %d runs, want 2", len(limited))
	}
}

func TestDeleteRun(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, workflow.NewCheckpoint(run, "gather")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, flowline.ErrRunNotFound) {
		t.Fatalf("GetRun after delete = %v, want ErrRunNotFound", err)
	}
	cps, err := s.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("checkpoints survive delete: %d", len(cps))
	}
}

func TestCheckpointOrder(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run := workflow.NewRun(testDefinition())
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Record(&workflow.StepResult{StepID: "gather", Outcome: workflow.OutcomeSuccess})
	if err := s.SaveCheckpoint(ctx, workflow.NewCheckpoint(run, "gather")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	run.Record(&workflow.StepResult{StepID: "draft", Outcome: workflow.OutcomeSuccess})
	if err := s.SaveCheckpoint(ctx, workflow.NewCheckpoint(run, "draft")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	cps, err := s.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("len = %d, want 2", len(cps))
	}
	if cps[0].StepID != "gather" || cps[1].StepID != "draft" {
		t.Errorf("order = [%s %s], want [gather draft]", cps[0].StepID, cps[1].StepID)
	}
	if len(cps[1].State.StepResults) != 2 {
		t.Errorf("second checkpoint captures %d results, want 2", len(cps[1].State.StepResults))
	}
}

func TestCheckpointsIsolatedPerRun(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	run1 := workflow.NewRun(testDefinition())
	run2 := workflow.NewRun(testDefinition())
	for _, r := range []*workflow.Run{run1, run2} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	if err := s.SaveCheckpoint(ctx, workflow.NewCheckpoint(run1, "gather")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	cps, err := s.ListCheckpoints(ctx, run2.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("run2 sees %d checkpoints from run1", len(cps))
	}
}
