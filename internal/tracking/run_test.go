package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

type namedErr struct {
	step string
	err  error
}

func (e *namedErr) Error() string    { return e.step + ": " + e.err.Error() }
func (e *namedErr) Unwrap() error    { return e.err }
func (e *namedErr) StepName() string { return e.step }

func mustInit(t *testing.T, l *Local) *Run {
	t.Helper()
	run, err := Init(context.Background(), l, "basic_cleaning", "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return run
}

func TestRun_UpdateConfigMerges(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	run := mustInit(t, l)

	if err := run.UpdateConfig(ctx, map[string]any{"min_price": 10.0}); err != nil {
		t.Fatal(err)
	}
	if err := run.UpdateConfig(ctx, map[string]any{"max_price": 350.0}); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{"min_price": 10.0, "max_price": 350.0}
	if diff := cmp.Diff(want, run.Config()); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}

	stored, err := l.registry.GetRun(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(stored.Config), &got); err != nil {
		t.Fatalf("stored config: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored config mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_UseArtifact(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	seed := mustRun(t, l)
	a := mustLog(t, l, seed.ID, "sample.csv", "price\n10\n")

	run := mustInit(t, l)
	h, err := run.UseArtifact(ctx, "sample.csv:latest")
	if err != nil {
		t.Fatalf("UseArtifact: %v", err)
	}
	if h.Artifact.ID != a.ID {
		t.Errorf("resolved %s, want %s", h.Artifact.ID, a.ID)
	}
	if _, err := h.File(ctx); err != nil {
		t.Errorf("File: %v", err)
	}
}

func TestRun_UseArtifact_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"empty name", ":latest"},
		{"empty alias", "sample.csv:"},
		{"unknown artifact", "missing.csv:latest"},
		{"unknown version", "sample.csv:v9"},
	}

	l := newTestLocal(t)
	seed := mustRun(t, l)
	mustLog(t, l, seed.ID, "sample.csv", "price\n10\n")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := mustInit(t, l)
			_, err := run.UseArtifact(context.Background(), tt.ref)
			if !errors.Is(err, model.ErrResolution) {
				t.Fatalf("UseArtifact(%q) error = %v, want ErrResolution", tt.ref, err)
			}
		})
	}
}

func TestRun_LogArtifact_RequiresFile(t *testing.T) {
	l := newTestLocal(t)
	run := mustInit(t, l)

	_, err := run.LogArtifact(context.Background(), NewArtifact("clean.csv", "clean_sample", ""))
	if !errors.Is(err, model.ErrPublish) {
		t.Fatalf("LogArtifact error = %v, want ErrPublish", err)
	}
}

func TestRun_FinishSuccess(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	run := mustInit(t, l)

	if err := run.Finish(ctx, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := run.Finish(ctx, nil); err != nil {
		t.Errorf("second Finish: %v, want no-op", err)
	}

	got, err := l.registry.GetRun(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.RunFinished || got.ErrorInfo != nil {
		t.Errorf("run = %+v, want finished without error info", got)
	}

	if _, err := run.UseArtifact(ctx, "sample.csv"); !errors.Is(err, model.ErrRunFinished) {
		t.Errorf("UseArtifact after Finish = %v, want ErrRunFinished", err)
	}
	if err := run.UpdateConfig(ctx, map[string]any{"a": 1}); !errors.Is(err, model.ErrRunFinished) {
		t.Errorf("UpdateConfig after Finish = %v, want ErrRunFinished", err)
	}
}

func TestRun_FinishFailureRecordsErrorInfo(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	run := mustInit(t, l)

	runErr := &namedErr{step: "filter", err: model.ErrParse}
	if err := run.Finish(ctx, runErr); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := l.registry.GetRun(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.RunFailed {
		t.Errorf("State = %q, want %q", got.State, model.RunFailed)
	}
	if got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", got.ExitCode)
	}
	if got.ErrorInfo == nil {
		t.Fatal("ErrorInfo is nil")
	}
	var info model.ErrorInfo
	if err := json.Unmarshal([]byte(*got.ErrorInfo), &info); err != nil {
		t.Fatalf("unmarshal error info: %v", err)
	}
	if info.FailedStep != "filter" {
		t.Errorf("FailedStep = %q, want filter", info.FailedStep)
	}
	if info.Message != runErr.Error() {
		t.Errorf("Message = %q, want %q", info.Message, runErr.Error())
	}
}

func TestBuildErrorInfo_UnknownStep(t *testing.T) {
	var info model.ErrorInfo
	if err := json.Unmarshal([]byte(buildErrorInfo(errors.New("boom"))), &info); err != nil {
		t.Fatal(err)
	}
	if info.FailedStep != "unknown" {
		t.Errorf("FailedStep = %q, want unknown", info.FailedStep)
	}
}

func TestPendingArtifact_AddFile(t *testing.T) {
	p := NewArtifact("clean.csv", "clean_sample", "")
	if err := p.AddFile(""); err == nil {
		t.Error("AddFile(\"\"): expected error")
	}
	if err := p.AddFile("/tmp/work/clean.csv"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := p.AddFile("/tmp/work/other.csv"); err == nil {
		t.Error("second AddFile: expected error")
	}
	if p.FileName() != "clean.csv" {
		t.Errorf("FileName = %q, want clean.csv", p.FileName())
	}
}
