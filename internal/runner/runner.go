// Package runner executes one evaluation of an experiment end to end:
// fetch the variant reports, judge them and record the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/dispatch"
	"github.com/gkobilansky/ga4-goat/internal/ga4"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/narrative"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotRunning is returned for scheduled executions of experiments
	// that are paused or completed.
	ErrNotRunning = errors.New("experiment is not running")
	// ErrNotStarted is returned when the experiment starts after today.
	ErrNotStarted = errors.New("experiment has not started yet")
	// ErrTooFewVariants is returned when fewer than two arms are defined.
	ErrTooFewVariants = errors.New("experiment needs at least two variants")
)

// Runner wires the store, the analytics source and the optional narrator.
type Runner struct {
	Store    store.Store
	Source   ga4.Source
	Narrator narrative.Narrator
	Clock    jst.Clock

	locks dispatch.Locks
}

var _ dispatch.Executor = (*Runner)(nil)

// New returns a Runner on the system clock. narrator may be nil.
func New(s store.Store, source ga4.Source, narrator narrative.Narrator) *Runner {
	return &Runner{Store: s, Source: source, Narrator: narrator, Clock: jst.SystemClock{}}
}

// ExecuteScheduled implements dispatch.Executor.
func (r *Runner) ExecuteScheduled(ctx context.Context, id int64) error {
	_, err := r.Execute(ctx, id, store.TriggerScheduled)
	return err
}

// Execute evaluates experiment id and persists the result. Concurrent calls
// for the same id fail fast with dispatch.ErrBusy.
func (r *Runner) Execute(ctx context.Context, id int64, trigger store.Trigger) (*store.Result, error) {
	unlock, ok := r.locks.TryLock(id)
	if !ok {
		return nil, dispatch.ErrBusy
	}
	defer unlock()

	exp, err := r.Store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if trigger == store.TriggerScheduled && exp.State != store.StateRunning {
		return nil, fmt.Errorf("%w: experiment %d is %s", ErrNotRunning, id, exp.State)
	}
	if len(exp.Variants) < 2 {
		return nil, ErrTooFewVariants
	}

	now := r.now()
	exec, err := r.Store.CreateExecution(ctx, id, trigger, now)
	if err != nil {
		return nil, err
	}

	logger := log.With().Int64("experiment", id).Str("execution", exec.ID).Str("trigger", string(trigger)).Logger()
	logger.Info().Msg("Evaluating experiment")

	result, err := r.evaluate(ctx, exp, exec, now)
	if err != nil {
		logger.Error().Err(err).Msg("Evaluation failed")
		if ferr := r.Store.FinishExecution(context.WithoutCancel(ctx), exec.ID, store.ExecutionFailed, err.Error(), r.now()); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to record failed execution")
		}
		return nil, err
	}

	if err := r.Store.FinishExecution(ctx, exec.ID, store.ExecutionCompleted, "", r.now()); err != nil {
		return nil, err
	}
	if err := r.Store.MarkExecuted(ctx, id, now); err != nil {
		return nil, err
	}

	logger.Info().
		Stringer("winner", result.Verdict.Winner).
		Bool("allPassed", result.Verdict.AllPassed).
		Msg("Evaluation completed")

	return result, nil
}

func (r *Runner) evaluate(ctx context.Context, exp *store.Experiment, exec *store.Execution, now time.Time) (*store.Result, error) {
	start, end, err := DateRange(exp, now)
	if err != nil {
		return nil, err
	}

	variants, err := r.measure(ctx, exp, start, end)
	if err != nil {
		return nil, err
	}

	winner, runnerUp, _ := judge.PickLeaders(variants)
	verdict := judge.Evaluate(winner, runnerUp, start, end, exp.Evaluation, variants)

	ai := narrative.Generate(ctx, r.Narrator, narrative.Input{
		ExperimentName: exp.Name,
		Verdict:        verdict,
		Variants:       variants,
	})

	return r.Store.SaveResult(ctx, &store.Result{
		ExperimentID: exp.ID,
		ExecutionID:  exec.ID,
		Verdict:      verdict,
		Variants:     variants,
		AIEvaluation: ai,
		CreatedAt:    now,
	})
}

// measure fetches one report per variant concurrently and extracts its counts.
func (r *Runner) measure(ctx context.Context, exp *store.Experiment, start, end time.Time) ([]judge.Variant, error) {
	reports := make([]cvr.Report, len(exp.Variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range exp.Variants {
		g.Go(func() error {
			report, err := r.Source.RunReport(gctx, ga4.Request{
				PropertyID: exp.PropertyID,
				StartDate:  start,
				EndDate:    end,
				Dimensions: def.Spec.Dimensions(),
				Metrics:    []string{def.Spec.Metric},
				Filters:    def.ReportFilters,
			})
			if err != nil {
				return fmt.Errorf("failed to fetch report for variant %s: %w", def.Label, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	variants := make([]judge.Variant, len(exp.Variants))
	for i, def := range exp.Variants {
		res := cvr.Extract(reports[i], def.Spec)
		if res.Diagnosis != cvr.DiagnosisOK {
			log.Warn().
				Int64("experiment", exp.ID).
				Stringer("variant", def.Label).
				Str("diagnosis", string(res.Diagnosis)).
				Str("column", res.MissingColumn).
				Msg("Variant report has no usable data")
		}
		variants[i] = judge.Variant{Label: def.Label, PV: res.PV, CV: res.CV}
	}
	return variants, nil
}

// DateRange is the reporting window: the start date through the end date or
// today, whichever comes first, as UTC+9 midnights.
func DateRange(exp *store.Experiment, now time.Time) (start, end time.Time, err error) {
	start = jst.StartOfDay(exp.StartDate)
	end = jst.StartOfDay(now)
	if exp.EndDate != nil {
		if e := jst.StartOfDay(*exp.EndDate); e.Before(end) {
			end = e
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: starts %s", ErrNotStarted, jst.FormatDate(start))
	}
	return start, end, nil
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}
