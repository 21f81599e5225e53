package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/gkobilansky/ga4-goat/internal/testutil"
)

var (
	start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func TestOpen(t *testing.T) {
	s := testutil.SetupTestStore(t)

	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestCreateExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)

	exp := testutil.CreateExperiment(t, s, "hero", start, end)

	if exp.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if exp.Name != "hero" {
		t.Errorf("got Name %s, want hero", exp.Name)
	}
	if exp.State != store.StateRunning {
		t.Errorf("got State %s, want running", exp.State)
	}
	if !exp.AutoExecute {
		t.Error("expected AutoExecute to round-trip")
	}
	if !exp.StartDate.Equal(start) {
		t.Errorf("got StartDate %s, want %s", exp.StartDate, start)
	}
	if exp.EndDate == nil || !exp.EndDate.Equal(end) {
		t.Errorf("got EndDate %v, want %s", exp.EndDate, end)
	}
	if exp.LastExecutedAt != nil {
		t.Errorf("expected nil LastExecutedAt, got %v", exp.LastExecutedAt)
	}
	if exp.Schedule == nil || exp.Schedule.RecurringPattern == nil || exp.Schedule.RecurringPattern.Frequency != schedule.Daily {
		t.Errorf("schedule did not round-trip: %+v", exp.Schedule)
	}
	if len(exp.Variants) != 2 || exp.Variants[1].Label != judge.LabelB {
		t.Errorf("variants did not round-trip: %+v", exp.Variants)
	}
	if exp.Variants[0].ReportFilters[0].Expression != "/lp/a" {
		t.Errorf("report filters did not round-trip: %+v", exp.Variants[0].ReportFilters)
	}
	if exp.Evaluation.MinPV != 1000 || exp.Evaluation.MinSignificance != nil {
		t.Errorf("evaluation config did not round-trip: %+v", exp.Evaluation)
	}
}

func TestCreateExperiment_DuplicateName(t *testing.T) {
	s := testutil.SetupTestStore(t)

	testutil.CreateExperiment(t, s, "hero", start, end)

	_, err := s.CreateExperiment(context.Background(), testutil.NewExperiment("hero", start, end))
	if err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestCreateExperiment_OpenEnded(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.NewExperiment("open", start, end)
	exp.EndDate = nil
	exp.Schedule = nil

	saved, err := s.CreateExperiment(ctx, exp)
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	if saved.EndDate != nil {
		t.Errorf("expected nil EndDate, got %v", saved.EndDate)
	}
	if saved.Schedule != nil {
		t.Errorf("expected nil Schedule, got %+v", saved.Schedule)
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetExperiment(context.Background(), 42)
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExperimentByName(t *testing.T) {
	s := testutil.SetupTestStore(t)
	created := testutil.CreateExperiment(t, s, "hero", start, end)

	got, err := s.GetExperimentByName(context.Background(), "hero")
	if err != nil {
		t.Fatalf("GetExperimentByName failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected id %d, got %d", created.ID, got.ID)
	}

	if _, err := s.GetExperimentByName(context.Background(), "footer"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAutoExecutable(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	running := testutil.CreateExperiment(t, s, "running", start, end)
	paused := testutil.CreateExperiment(t, s, "paused", start, end)
	if err := s.UpdateExperimentState(ctx, paused.ID, store.StatePaused); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}

	manual := testutil.NewExperiment("manual", start, end)
	manual.AutoExecute = false
	if _, err := s.CreateExperiment(ctx, manual); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	exps, err := s.ListAutoExecutable(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(exps) != 1 || exps[0].ID != running.ID {
		t.Fatalf("expected only %d, got %+v", running.ID, exps)
	}

	all, err := s.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d experiments, want 3", len(all))
	}
}

func TestMarkExecuted(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.CreateExperiment(t, s, "hero", start, end)
	at := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)

	if err := s.MarkExecuted(ctx, exp.ID, at); err != nil {
		t.Fatalf("MarkExecuted failed: %v", err)
	}

	got, err := s.GetExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}
	if got.LastExecutedAt == nil || !got.LastExecutedAt.Equal(at) {
		t.Errorf("got LastExecutedAt %v, want %s", got.LastExecutedAt, at)
	}

	if err := s.MarkExecuted(ctx, 999, at); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHasExecution(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.CreateExperiment(t, s, "hero", start, end)
	at := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)

	run, err := s.CreateExecution(ctx, exp.ID, store.TriggerScheduled, at)
	if err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	tests := []struct {
		name     string
		from, to time.Time
		statuses []store.ExecutionStatus
		want     bool
	}{
		{"inside window", at.Add(-time.Minute), at.Add(time.Minute), []store.ExecutionStatus{store.ExecutionRunning, store.ExecutionCompleted}, true},
		{"window edges are inclusive", at, at, nil, true},
		{"before window", at.Add(time.Second), at.Add(time.Hour), nil, false},
		{"status filtered out", at.Add(-time.Minute), at.Add(time.Minute), []store.ExecutionStatus{store.ExecutionCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasExecution(ctx, exp.ID, tt.from, tt.to, tt.statuses...)
			if err != nil {
				t.Fatalf("HasExecution failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if err := s.FinishExecution(ctx, run.ID, store.ExecutionFailed, "ga4 timeout", at.Add(time.Minute)); err != nil {
		t.Fatalf("FinishExecution failed: %v", err)
	}

	got, err := s.HasExecution(ctx, exp.ID, at.Add(-time.Minute), at.Add(time.Minute), store.ExecutionRunning, store.ExecutionCompleted)
	if err != nil {
		t.Fatalf("HasExecution failed: %v", err)
	}
	if got {
		t.Error("failed executions should not count")
	}

	execs, err := s.ListExecutions(ctx, exp.ID)
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(execs) != 1 || execs[0].Error != "ga4 timeout" || execs[0].CompletedAt == nil {
		t.Errorf("unexpected history: %+v", execs[0])
	}
}

func TestSaveAndLatestResult(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.CreateExperiment(t, s, "hero", start, end)

	if _, err := s.LatestResult(ctx, exp.ID); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound before any result, got %v", err)
	}

	narrative := "B is ahead."
	first := &store.Result{
		ExperimentID: exp.ID,
		Verdict:      judge.Verdict{Winner: judge.LabelA, RunnerUp: judge.LabelB, BaselineWins: true},
		Variants:     []judge.Variant{{Label: judge.LabelA, PV: 10, CV: 2}},
		CreatedAt:    time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	second := &store.Result{
		ExperimentID: exp.ID,
		ExecutionID:  "exec-2",
		Verdict:      judge.Verdict{Winner: judge.LabelB, RunnerUp: judge.LabelA, AllPassed: true, Recommendation: "adopt B"},
		Variants:     []judge.Variant{{Label: judge.LabelA, PV: 100, CV: 10}, {Label: judge.LabelB, PV: 100, CV: 20}},
		AIEvaluation: &narrative,
		CreatedAt:    time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	}
	for _, r := range []*store.Result{first, second} {
		if _, err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
	}

	latest, err := s.LatestResult(ctx, exp.ID)
	if err != nil {
		t.Fatalf("LatestResult failed: %v", err)
	}
	if latest.ExecutionID != "exec-2" || !latest.Verdict.AllPassed || latest.Verdict.Winner != judge.LabelB {
		t.Errorf("unexpected latest result: %+v", latest)
	}
	if latest.AIEvaluation == nil || *latest.AIEvaluation != narrative {
		t.Errorf("got AIEvaluation %v, want %q", latest.AIEvaluation, narrative)
	}
	if len(latest.Variants) != 2 || latest.Variants[1].CVR() != 0.2 {
		t.Errorf("variants did not round-trip: %+v", latest.Variants)
	}

	all, err := s.ListResults(ctx, exp.ID)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(all) != 2 || all[1].AIEvaluation != nil {
		t.Errorf("unexpected results: %+v", all)
	}
}

func TestDeleteExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.CreateExperiment(t, s, "hero", start, end)
	if _, err := s.CreateExecution(ctx, exp.ID, store.TriggerManual, start); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	if err := s.DeleteExperiment(ctx, exp.ID); err != nil {
		t.Fatalf("DeleteExperiment failed: %v", err)
	}
	if _, err := s.GetExperiment(ctx, exp.ID); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteExperiment(ctx, exp.ID); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "api_token"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "api_token", "first"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting(ctx, "api_token", "second"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	value, err := s.GetSetting(ctx, "api_token")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "second" {
		t.Errorf("got %q, want %q", value, "second")
	}
}

func TestTestState_Constants(t *testing.T) {
	tests := []struct {
		state store.TestState
		want  string
	}{
		{store.StateRunning, "running"},
		{store.StatePaused, "paused"},
		{store.StateCompleted, "completed"},
	}

	for _, tt := range tests {
		if string(tt.state) != tt.want {
			t.Errorf("got %s, want %s", tt.state, tt.want)
		}
	}
}
