package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Minute

var (
	pollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goat_poll_ticks_total",
		Help: "Number of schedule polling ticks.",
	})
	dueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goat_dispatch_due_total",
		Help: "Number of experiments found due.",
	})
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goat_executions_total",
		Help: "Scheduled executions by outcome.",
	}, []string{"outcome"})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "goat_poll_tick_duration_seconds",
		Help:    "Time spent processing a polling tick.",
		Buckets: prometheus.DefBuckets,
	})
)

// ErrBusy is returned by an Executor when the experiment is already being
// executed. Executors must hold a per-ID lock (see Locks) from the moment
// they decide to run until the execution is recorded, otherwise two ticks
// or a tick and a manual run can both fire the same slot.
var ErrBusy = errors.New("execution already in progress")

// Executor runs one experiment.
type Executor interface {
	ExecuteScheduled(ctx context.Context, id int64) error
}

// Finder is the part of Dispatcher the poller needs.
type Finder interface {
	FindDue(ctx context.Context) ([]int64, error)
}

// Poller runs Finder on a fixed interval and executes what it finds.
// Ticks never overlap: the timer is re-armed after a tick finishes.
type Poller struct {
	Finder   Finder
	Executor Executor
	Interval time.Duration
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	log.Info().Dur("interval", interval).Msg("Schedule poller started")
	timer := time.NewTimer(time.Until(NextTick(time.Now(), interval)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Schedule poller stopped")
			return ctx.Err()
		case <-timer.C:
			p.Tick(ctx)
			timer.Reset(time.Until(NextTick(time.Now(), interval)))
		}
	}
}

// NextTick returns the first multiple of interval after now. Ticks stay on
// wall-clock boundaries however long each tick takes.
func NextTick(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// TickReport summarises one tick.
type TickReport struct {
	Due       []int64
	Succeeded []int64
	Failed    map[int64]error
	Skipped   []int64
}

// Tick runs one poll cycle. Each due ID is executed in turn; a failure is
// logged and the remaining IDs are still attempted.
func (p *Poller) Tick(ctx context.Context) TickReport {
	started := time.Now()
	defer func() { tickDuration.Observe(time.Since(started).Seconds()) }()
	pollTicks.Inc()

	report := TickReport{Failed: make(map[int64]error)}

	ids, err := p.Finder.FindDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Schedule check failed")
		return report
	}
	report.Due = ids
	dueTotal.Add(float64(len(ids)))
	log.Debug().Int("due", len(ids)).Msg("Schedule tick")

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		err := p.execute(ctx, id)

		switch {
		case errors.Is(err, ErrBusy):
			report.Skipped = append(report.Skipped, id)
			executionsTotal.WithLabelValues("skipped").Inc()
			log.Info().Int64("experiment", id).Msg("Execution already in progress, skipping")
		case err != nil:
			report.Failed[id] = err
			executionsTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Int64("experiment", id).Msg("Scheduled execution failed")
		default:
			report.Succeeded = append(report.Succeeded, id)
			executionsTotal.WithLabelValues("succeeded").Inc()
			log.Info().Int64("experiment", id).Msg("Scheduled execution completed")
		}
	}

	return report
}

// execute shields the loop from executor panics.
func (p *Poller) execute(ctx context.Context, id int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return p.Executor.ExecuteScheduled(ctx, id)
}

type panicError struct{ value any }

func (e panicError) Error() string {
	return "executor panicked: " + toString(e.value)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	default:
		return "unknown panic"
	}
}

// Locks is a set of per-experiment try-locks.
type Locks struct {
	mu   sync.Mutex
	held map[int64]bool
}

// TryLock acquires the lock for id, returning false if it is held.
func (l *Locks) TryLock(id int64) (unlock func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		l.held = make(map[int64]bool)
	}
	if l.held[id] {
		return nil, false
	}
	l.held[id] = true

	return func() {
		l.mu.Lock()
		delete(l.held, id)
		l.mu.Unlock()
	}, true
}
