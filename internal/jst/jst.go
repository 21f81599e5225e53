// Package jst does civil-time arithmetic in a fixed UTC+9 offset.
//
// Scheduling decisions must not depend on the host's local time zone, so
// every "date at HH:MM" combination in this module goes through here.
package jst

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Zone is UTC+9 with no daylight saving.
var Zone = time.FixedZone("JST", 9*60*60)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used by tests and one-shot CLI
// evaluations that want a pinned "now".
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// In converts t to the fixed zone.
func In(t time.Time) time.Time {
	return t.In(Zone)
}

// StartOfDay returns 00:00 of t's civil date in the fixed zone.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(Zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Zone)
}

// AddDays moves t by n civil days, keeping the time of day.
func AddDays(t time.Time, n int) time.Time {
	return t.In(Zone).AddDate(0, 0, n)
}

// At combines the civil date of t (in the fixed zone) with an "HH:MM" time of day.
func At(t time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := t.In(Zone).Date()
	return time.Date(y, mo, d, h, m, 0, 0, Zone), nil
}

// Date builds a civil time in the fixed zone. Out-of-range days normalize the
// way time.Date does.
func Date(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Zone)
}

// DaysIn reports the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseHHMM parses "HH:MM" (24h).
func ParseHHMM(s string) (hour, min int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, min, nil
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

var civilLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseLocal parses "YYYY-MM-DDTHH:mm[...]". Strings carrying an explicit
// offset (or Z) keep it; strings without one are read as civil time in the
// fixed zone.
func ParseLocal(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range civilLayouts {
		if t, err := time.ParseInLocation(layout, s, Zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// ParseDate parses a "YYYY-MM-DD" civil date as midnight in the fixed zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders t's civil date in the fixed zone.
func FormatDate(t time.Time) string {
	return t.In(Zone).Format("2006-01-02")
}
