// Package dispatch decides which experiments are due for evaluation and
// drives the polling loop that runs them.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/rs/zerolog/log"
)

// ScheduledWindow is the de-duplication window around a "scheduled" firing.
const ScheduledWindow = time.Minute

// DefaultCatchUp is how far back FindDue looks for slots a late or
// skipped tick missed.
const DefaultCatchUp = 10 * time.Minute

// ExperimentSource lists experiments that may run automatically.
type ExperimentSource interface {
	ListAutoExecutable(ctx context.Context) ([]*store.Experiment, error)
}

// HistorySource answers whether an execution already exists in a window.
type HistorySource interface {
	HasExecution(ctx context.Context, experimentID int64, from, to time.Time, statuses ...store.ExecutionStatus) (bool, error)
}

// Dispatcher finds due experiments. It only reads.
type Dispatcher struct {
	Experiments ExperimentSource
	History     HistorySource
	Clock       jst.Clock
	// CatchUp bounds how late a slot may still be picked up. Zero means
	// DefaultCatchUp; it should exceed the polling interval.
	CatchUp time.Duration
}

// Due pairs an experiment with the slot it is due for.
type Due struct {
	ID   int64
	Slot time.Time
}

// FindDue returns the IDs of experiments whose next execution has arrived
// and has not already been run. Order is unspecified.
func (d *Dispatcher) FindDue(ctx context.Context) ([]int64, error) {
	due, err := d.FindDueSlots(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(due))
	for i, x := range due {
		ids[i] = x.ID
	}
	return ids, nil
}

// FindDueSlots is FindDue with the matched slot for each experiment.
//
// Schedules are evaluated CatchUp before now (truncated to the minute), so
// a slot at HH:MM stays due until it has been served or CatchUp has passed,
// however the ticks fall around it.
func (d *Dispatcher) FindDueSlots(ctx context.Context) ([]Due, error) {
	now := d.now()
	from := now.Truncate(time.Minute).Add(-d.catchUp())

	exps, err := d.Experiments.ListAutoExecutable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	var due []Due
	for _, exp := range exps {
		if exp.State != store.StateRunning || !exp.AutoExecute || exp.Schedule == nil || !exp.Schedule.Enabled {
			continue
		}
		if jst.StartOfDay(exp.StartDate).After(now) {
			continue
		}

		slot, ok := schedule.Next(*exp.Schedule, exp.StartDate, exp.EndDate, exp.LastExecutedAt, from)
		if !ok || slot.After(now) {
			continue
		}

		winFrom, winTo := DedupWindow(exp.Schedule.ExecutionType, slot, now)
		if last := exp.LastExecutedAt; last != nil && !last.Before(winFrom) {
			log.Debug().Int64("experiment", exp.ID).Time("slot", slot).Msg("Already executed for slot")
			continue
		}
		exists, err := d.History.HasExecution(ctx, exp.ID, winFrom, winTo, store.ExecutionCompleted, store.ExecutionRunning)
		if err != nil {
			return nil, fmt.Errorf("failed to check history for experiment %d: %w", exp.ID, err)
		}
		if exists {
			log.Debug().Int64("experiment", exp.ID).Time("slot", slot).Msg("Already executed for slot")
			continue
		}

		due = append(due, Due{ID: exp.ID, Slot: slot})
	}

	return due, nil
}

// DedupWindow returns the inclusive range in which an existing execution
// counts as having served slot: from one minute before a "scheduled" slot
// up to now (at least one minute after it), the slot's UTC+9 calendar day
// otherwise.
func DedupWindow(t schedule.ExecutionType, slot, now time.Time) (from, to time.Time) {
	if t == schedule.Scheduled {
		to = slot.Add(ScheduledWindow)
		if now.After(to) {
			to = now
		}
		return slot.Add(-ScheduledWindow), to
	}
	dayStart := jst.StartOfDay(slot)
	return dayStart, dayStart.Add(24*time.Hour - time.Second)
}

func (d *Dispatcher) catchUp() time.Duration {
	if d.CatchUp <= 0 {
		return DefaultCatchUp
	}
	return d.CatchUp
}

func (d *Dispatcher) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}
