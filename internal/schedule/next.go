package schedule

import (
	"sort"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/rs/zerolog/log"
)

// Calculator evaluates schedules against a clock.
type Calculator struct {
	Clock jst.Clock
}

// Next reads the clock once and delegates to the package-level Next.
func (c Calculator) Next(cfg Config, start time.Time, end, last *time.Time) (time.Time, bool) {
	clock := c.Clock
	if clock == nil {
		clock = jst.SystemClock{}
	}
	return Next(cfg, start, end, last, clock.Now())
}

// Next returns the next time the experiment should be evaluated, or false
// when there is none. All time-of-day arithmetic happens in UTC+9.
//
// "scheduled" returns its configured instant even when it is in the past;
// the other types never return a firing that is already behind now, except
// weekly, which returns today's slot when today is a scheduled weekday.
// Recurring firings never fall before the start date.
func Next(cfg Config, start time.Time, end, last *time.Time, now time.Time) (time.Time, bool) {
	if !cfg.Enabled || end == nil {
		return time.Time{}, false
	}

	switch cfg.ExecutionType {
	case OnEnd, OnEndDelayed, Recurring:
	case Scheduled:
		t, err := jst.ParseLocal(cfg.ScheduledDate)
		if err != nil {
			log.Warn().Err(err).Str("scheduledDate", cfg.ScheduledDate).Msg("Invalid scheduled date")
			return time.Time{}, false
		}
		return t, true
	default:
		log.Warn().Str("executionType", string(cfg.ExecutionType)).Msg("Unknown execution type")
		return time.Time{}, false
	}

	tod, err := parseTimeOfDay(cfg.timeOfDay())
	if err != nil {
		log.Warn().Err(err).Str("executionType", string(cfg.ExecutionType)).Msg("Invalid schedule time")
		return time.Time{}, false
	}

	switch cfg.ExecutionType {
	case OnEnd:
		return notBefore(tod.on(*end), now)
	case OnEndDelayed:
		return notBefore(tod.on(jst.AddDays(*end, cfg.DelayDays)), now)
	default:
		return nextRecurring(cfg.RecurringPattern, tod, start, last, now)
	}
}

func nextRecurring(p *Pattern, tod timeOfDay, start time.Time, last *time.Time, now time.Time) (time.Time, bool) {
	if p == nil {
		log.Warn().Msg("Recurring schedule has no pattern")
		return time.Time{}, false
	}

	// Weekly and monthly search from the start day when it is still ahead.
	from := now
	if first := jst.StartOfDay(start); first.After(now) {
		from = first
	}

	switch p.Frequency {
	case Daily:
		base := start
		if last != nil {
			base = *last
		}
		next := tod.on(jst.AddDays(base, 1))
		if !next.Before(now) {
			return next, true
		}
		next = tod.on(now)
		if next.Before(now) {
			next = tod.on(jst.AddDays(now, 1))
		}
		return next, true

	case Weekly:
		days := p.DaysOfWeek
		if len(days) == 0 {
			days = []int{0}
		}
		sorted := append([]int(nil), days...)
		sort.Ints(sorted)

		today := int(jst.In(from).Weekday())
		offset := -1
		for _, d := range sorted {
			if d >= today {
				offset = d - today
				break
			}
		}
		if offset < 0 {
			offset = 7 - today + sorted[0]
		}
		return tod.on(jst.AddDays(from, offset)), true

	case Monthly:
		dom := p.DayOfMonth
		if dom <= 0 {
			dom = 1
		}
		local := jst.In(from)
		next := monthDay(local.Year(), local.Month(), dom, tod)
		if next.Before(from) {
			next = monthDay(local.Year(), local.Month()+1, dom, tod)
		}
		return next, true

	default:
		log.Warn().Str("frequency", string(p.Frequency)).Msg("Unknown recurring frequency")
		return time.Time{}, false
	}
}

// timeOfDay is a validated HH:MM in UTC+9.
type timeOfDay struct {
	hour, min int
}

func parseTimeOfDay(s string) (timeOfDay, error) {
	h, m, err := jst.ParseHHMM(s)
	if err != nil {
		return timeOfDay{}, err
	}
	return timeOfDay{hour: h, min: m}, nil
}

// on returns the time of day on day's UTC+9 civil date.
func (t timeOfDay) on(day time.Time) time.Time {
	y, m, d := jst.In(day).Date()
	return jst.Date(y, m, d, t.hour, t.min)
}

// monthDay builds day dom of the given month at tod, clamping dom to the
// month's last day. month may be 13, which normalizes to January.
func monthDay(year int, month time.Month, dom int, tod timeOfDay) time.Time {
	first := jst.Date(year, month, 1, 0, 0)
	if n := jst.DaysIn(first.Year(), first.Month()); dom > n {
		dom = n
	}
	return tod.on(jst.Date(first.Year(), first.Month(), dom, 0, 0))
}

func notBefore(t, now time.Time) (time.Time, bool) {
	if t.Before(now) {
		return time.Time{}, false
	}
	return t, true
}
