package store

import (
	"time"

	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
)

type TestState string

const (
	StateRunning   TestState = "running"
	StatePaused    TestState = "paused"
	StateCompleted TestState = "completed"
)

// Experiment is an A/B test evaluated against a GA4 property.
type Experiment struct {
	ID             int64
	Name           string
	PropertyID     string
	State          TestState
	AutoExecute    bool
	StartDate      time.Time
	EndDate        *time.Time
	LastExecutedAt *time.Time
	Schedule       *schedule.Config // Decoded from JSON
	Evaluation     judge.Config     // Decoded from JSON
	Variants       []VariantDef     // Decoded from JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VariantDef says how to measure one arm. ReportFilters are sent to GA4
// as the report's row filter.
type VariantDef struct {
	Label         judge.Label  `json:"label" yaml:"label"`
	Spec          cvr.Spec     `json:"spec" yaml:"spec"`
	ReportFilters []cvr.Filter `json:"reportFilters,omitempty" yaml:"reportFilters,omitempty"`
}

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Execution is one entry in an experiment's run history.
type Execution struct {
	ID           string
	ExperimentID int64
	Status       ExecutionStatus
	Trigger      Trigger
	Error        string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Result is a persisted verdict.
type Result struct {
	ID           int64
	ExperimentID int64
	ExecutionID  string
	Verdict      judge.Verdict   // Decoded from JSON
	Variants     []judge.Variant // Decoded from JSON
	AIEvaluation *string
	CreatedAt    time.Time
}
