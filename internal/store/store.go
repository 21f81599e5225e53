package store

import (
	"context"
	"time"
)

// Store defines the interface for experiment storage operations
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	ListAutoExecutable(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentState(ctx context.Context, id int64, state TestState) error
	MarkExecuted(ctx context.Context, id int64, at time.Time) error
	DeleteExperiment(ctx context.Context, id int64) error

	// Execution history
	CreateExecution(ctx context.Context, experimentID int64, trigger Trigger, at time.Time) (*Execution, error)
	FinishExecution(ctx context.Context, id string, status ExecutionStatus, errMsg string, at time.Time) error
	HasExecution(ctx context.Context, experimentID int64, from, to time.Time, statuses ...ExecutionStatus) (bool, error)
	ListExecutions(ctx context.Context, experimentID int64) ([]*Execution, error)

	// Results
	SaveResult(ctx context.Context, r *Result) (*Result, error)
	LatestResult(ctx context.Context, experimentID int64) (*Result, error)
	ListResults(ctx context.Context, experimentID int64) ([]*Result, error)

	// Lifecycle
	Close() error
}
