package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// ClickSpec measures clicks per page view on the eventName dimension.
func ClickSpec() cvr.Spec {
	return cvr.Spec{
		Metric:               "eventCount",
		DenominatorDimension: "eventName",
		DenominatorLabels:    []string{"page_view"},
		NumeratorDimension:   "eventName",
		NumeratorLabels:      []string{"click"},
	}
}

// NewExperiment returns a two-arm experiment with a daily 09:00 schedule.
func NewExperiment(name string, start, end time.Time) *store.Experiment {
	return &store.Experiment{
		Name:        name,
		PropertyID:  "123456",
		State:       store.StateRunning,
		AutoExecute: true,
		StartDate:   start,
		EndDate:     &end,
		Schedule: &schedule.Config{
			Enabled:          true,
			ExecutionType:    schedule.Recurring,
			RecurringPattern: &schedule.Pattern{Frequency: schedule.Daily, Time: "09:00"},
		},
		Evaluation: judge.DefaultConfig(),
		Variants: []store.VariantDef{
			{Label: judge.LabelA, Spec: ClickSpec(), ReportFilters: []cvr.Filter{{Dimension: "pagePath", Operator: cvr.OpExact, Expression: "/lp/a"}}},
			{Label: judge.LabelB, Spec: ClickSpec(), ReportFilters: []cvr.Filter{{Dimension: "pagePath", Operator: cvr.OpExact, Expression: "/lp/b"}}},
		},
	}
}

// CreateExperiment stores NewExperiment and fails the test on error.
func CreateExperiment(t *testing.T, s store.Store, name string, start, end time.Time) *store.Experiment {
	t.Helper()

	exp, err := s.CreateExperiment(context.Background(), NewExperiment(name, start, end))
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	return exp
}
