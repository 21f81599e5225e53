// Package schedule computes when an experiment should next be evaluated.
package schedule

import (
	"errors"
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/jst"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid schedule")

// ExecutionType selects how the next run is chosen.
type ExecutionType string

const (
	OnEnd        ExecutionType = "on_end"
	OnEndDelayed ExecutionType = "on_end_delayed"
	Scheduled    ExecutionType = "scheduled"
	Recurring    ExecutionType = "recurring"
)

// Frequency is the unit of a recurring schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// DefaultTime is used when a pattern omits its time of day.
const DefaultTime = "09:00"

// Pattern describes a recurrence. Time is "HH:MM" in UTC+9.
type Pattern struct {
	Frequency  Frequency `json:"frequency" yaml:"frequency"`
	Time       string    `json:"time" yaml:"time"`
	DaysOfWeek []int     `json:"daysOfWeek,omitempty" yaml:"daysOfWeek,omitempty"`
	DayOfMonth int       `json:"dayOfMonth,omitempty" yaml:"dayOfMonth,omitempty"`
}

// Config is an experiment's schedule.
type Config struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	ExecutionType    ExecutionType `json:"executionType" yaml:"executionType"`
	DelayDays        int           `json:"delayDays,omitempty" yaml:"delayDays,omitempty"`
	ScheduledDate    string        `json:"scheduledDate,omitempty" yaml:"scheduledDate,omitempty"`
	RecurringPattern *Pattern      `json:"recurringPattern,omitempty" yaml:"recurringPattern,omitempty"`
}

// timeOfDay returns the pattern's time, or DefaultTime.
func (c Config) timeOfDay() string {
	if c.RecurringPattern != nil && c.RecurringPattern.Time != "" {
		return c.RecurringPattern.Time
	}
	return DefaultTime
}

// Validate checks the config for mistakes Next would silently turn into
// "never". Disabled configs are always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ExecutionType != Scheduled {
		if _, err := parseTimeOfDay(c.timeOfDay()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	switch c.ExecutionType {
	case OnEnd:
		return nil
	case OnEndDelayed:
		if c.DelayDays < 0 {
			return fmt.Errorf("%w: delayDays must be >= 0", ErrInvalid)
		}
		return nil
	case Scheduled:
		if _, err := jst.ParseLocal(c.ScheduledDate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil
	case Recurring:
		return c.RecurringPattern.validate()
	default:
		return fmt.Errorf("%w: unknown executionType %q", ErrInvalid, c.ExecutionType)
	}
}

func (p *Pattern) validate() error {
	if p == nil {
		return fmt.Errorf("%w: recurring schedule needs recurringPattern", ErrInvalid)
	}
	switch p.Frequency {
	case Daily:
	case Weekly:
		for _, d := range p.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: daysOfWeek entry %d out of range 0-6", ErrInvalid, d)
			}
		}
	case Monthly:
		if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
			return fmt.Errorf("%w: dayOfMonth %d out of range 1-31", ErrInvalid, p.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalid, p.Frequency)
	}
	return nil
}
