package schedule_test

import (
	"testing"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNext_DisabledOrOpenEnded(t *testing.T) {
	cfg := schedule.Config{Enabled: false, ExecutionType: schedule.OnEnd}
	_, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), ptr(utc(2024, 6, 10, 0, 0)), nil, utc(2024, 6, 9, 0, 0))
	assert.False(t, ok)

	cfg.Enabled = true
	_, ok = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), nil, nil, utc(2024, 6, 9, 0, 0))
	assert.False(t, ok)
}

func TestNext_OnEnd(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.OnEnd,
		RecurringPattern: &schedule.Pattern{Time: "09:00"},
	}
	end := ptr(utc(2024, 6, 10, 0, 0))

	got, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 9, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 10, 0, 0), got.UTC())

	// Exactly at the slot still fires.
	_, ok = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 10, 0, 0))
	assert.True(t, ok)

	// A past slot never catches up.
	_, ok = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 10, 0, 1))
	assert.False(t, ok)
}

func TestNext_OnEndDefaultTime(t *testing.T) {
	cfg := schedule.Config{Enabled: true, ExecutionType: schedule.OnEnd}
	got, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), ptr(utc(2024, 6, 10, 0, 0)), nil, utc(2024, 6, 1, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 10, 0, 0), got.UTC())
}

func TestNext_OnEndDelayed(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.OnEndDelayed,
		DelayDays:        3,
		RecurringPattern: &schedule.Pattern{Time: "18:30"},
	}
	got, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), ptr(utc(2024, 6, 30, 0, 0)), nil, utc(2024, 6, 9, 0, 0))
	require.True(t, ok)
	// 2024-07-03 18:30 JST
	assert.Equal(t, utc(2024, 7, 3, 9, 30), got.UTC())
}

func TestNext_Scheduled(t *testing.T) {
	cfg := schedule.Config{Enabled: true, ExecutionType: schedule.Scheduled, ScheduledDate: "2024-06-15T10:00"}
	end := ptr(utc(2024, 6, 30, 0, 0))

	got, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 9, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 15, 1, 0), got.UTC())

	// Past scheduled dates are still returned.
	got, ok = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 20, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 15, 1, 0), got.UTC())

	cfg.ScheduledDate = "2024-06-15T10:00:00Z"
	got, _ = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 9, 0, 0))
	assert.Equal(t, utc(2024, 6, 15, 10, 0), got.UTC())

	cfg.ScheduledDate = "next tuesday"
	_, ok = schedule.Next(cfg, utc(2024, 6, 1, 0, 0), end, nil, utc(2024, 6, 9, 0, 0))
	assert.False(t, ok)
}

func TestNext_ScheduledIgnoresPatternTime(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Scheduled,
		ScheduledDate:    "2024-06-15T10:00",
		RecurringPattern: &schedule.Pattern{Time: "25:99"},
	}

	got, ok := schedule.Next(cfg, utc(2024, 6, 1, 0, 0), ptr(utc(2024, 6, 30, 0, 0)), nil, utc(2024, 6, 9, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 15, 1, 0), got.UTC())
	assert.NoError(t, cfg.Validate())
}

func TestNext_Daily(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Daily, Time: "09:00"},
	}
	start := utc(2024, 6, 1, 3, 0) // 12:00 JST
	end := ptr(utc(2024, 6, 30, 0, 0))

	t.Run("first run is the day after start", func(t *testing.T) {
		got, ok := schedule.Next(cfg, start, end, nil, utc(2024, 6, 1, 4, 0))
		require.True(t, ok)
		assert.Equal(t, utc(2024, 6, 2, 0, 0), got.UTC())
	})

	t.Run("day after last execution", func(t *testing.T) {
		last := ptr(utc(2024, 6, 5, 0, 0))
		got, ok := schedule.Next(cfg, start, end, last, utc(2024, 6, 5, 1, 0))
		require.True(t, ok)
		assert.Equal(t, utc(2024, 6, 6, 0, 0), got.UTC())
	})

	t.Run("stale base rolls to today", func(t *testing.T) {
		got, ok := schedule.Next(cfg, start, end, nil, utc(2024, 6, 10, 14, 0)) // 23:00 JST on the 10th
		require.True(t, ok)
		assert.Equal(t, utc(2024, 6, 11, 0, 0), got.UTC(), "today's slot has passed, so tomorrow")

		got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 6, 9, 16, 0)) // 01:00 JST on the 10th
		require.True(t, ok)
		assert.Equal(t, utc(2024, 6, 10, 0, 0), got.UTC())
	})
}

func TestNext_Weekly(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Weekly, Time: "10:00", DaysOfWeek: []int{5, 1}},
	}
	start := utc(2024, 6, 1, 0, 0)
	end := ptr(utc(2024, 7, 31, 0, 0))

	// 2024-06-12 is a Wednesday: next is Friday 06-14.
	got, ok := schedule.Next(cfg, start, end, nil, utc(2024, 6, 12, 3, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 14, 1, 0), got.UTC())

	// Saturday 06-15 wraps to Monday 06-17.
	got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 6, 15, 3, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 17, 1, 0), got.UTC())

	// Monday: today's slot is returned even after it has passed.
	got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 6, 17, 5, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 17, 1, 0), got.UTC())

	// Default is Sunday.
	cfg.RecurringPattern.DaysOfWeek = nil
	got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 6, 12, 3, 0))
	require.True(t, ok)
	assert.Equal(t, time.Sunday, got.In(jst.Zone).Weekday())
	assert.Equal(t, utc(2024, 6, 16, 1, 0), got.UTC())
}

func TestNext_Monthly(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Monthly, Time: "09:00", DayOfMonth: 15},
	}
	start := utc(2024, 1, 1, 0, 0)
	end := ptr(utc(2024, 12, 31, 0, 0))

	got, ok := schedule.Next(cfg, start, end, nil, utc(2024, 6, 10, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 15, 0, 0), got.UTC())

	got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 6, 15, 0, 1))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 7, 15, 0, 0), got.UTC())

	// December rolls into January.
	got, ok = schedule.Next(cfg, start, end, nil, utc(2024, 12, 20, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2025, 1, 15, 0, 0), got.UTC())
}

func TestNext_MonthlyClampsToMonthEnd(t *testing.T) {
	cfg := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Monthly, Time: "09:00", DayOfMonth: 31},
	}
	got, ok := schedule.Next(cfg, utc(2024, 1, 1, 0, 0), ptr(utc(2024, 12, 31, 0, 0)), nil, utc(2024, 2, 10, 0, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 2, 29, 0, 0), got.UTC())

	// Past April 30th rolls to May 31st.
	got, ok = schedule.Next(cfg, utc(2024, 1, 1, 0, 0), ptr(utc(2024, 12, 31, 0, 0)), nil, utc(2024, 4, 30, 1, 0))
	require.True(t, ok)
	assert.Equal(t, utc(2024, 5, 31, 0, 0), got.UTC())
}

func TestNext_RecurringWaitsForStart(t *testing.T) {
	// Start is Monday 2024-07-01; now is Monday 2024-06-17 14:00 JST.
	start := utc(2024, 6, 30, 15, 0)
	end := ptr(utc(2024, 7, 31, 0, 0))
	now := utc(2024, 6, 17, 5, 0)

	weekly := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Weekly, Time: "10:00", DaysOfWeek: []int{1}},
	}
	got, ok := schedule.Next(weekly, start, end, nil, now)
	require.True(t, ok)
	assert.Equal(t, utc(2024, 7, 1, 1, 0), got.UTC())

	// Start on a Wednesday: first Monday on or after it.
	got, ok = schedule.Next(weekly, utc(2024, 7, 2, 15, 0), end, nil, now)
	require.True(t, ok)
	assert.Equal(t, utc(2024, 7, 8, 1, 0), got.UTC())

	monthly := schedule.Config{
		Enabled:          true,
		ExecutionType:    schedule.Recurring,
		RecurringPattern: &schedule.Pattern{Frequency: schedule.Monthly, Time: "09:00", DayOfMonth: 17},
	}
	got, ok = schedule.Next(monthly, start, end, nil, now)
	require.True(t, ok)
	assert.Equal(t, utc(2024, 7, 17, 0, 0), got.UTC())
}

func TestNext_UnknownTypes(t *testing.T) {
	start := utc(2024, 1, 1, 0, 0)
	end := ptr(utc(2024, 12, 31, 0, 0))
	now := utc(2024, 6, 1, 0, 0)

	cases := []schedule.Config{
		{Enabled: true, ExecutionType: "sometimes"},
		{Enabled: true, ExecutionType: schedule.Recurring},
		{Enabled: true, ExecutionType: schedule.Recurring, RecurringPattern: &schedule.Pattern{Frequency: "hourly"}},
		{Enabled: true, ExecutionType: schedule.OnEnd, RecurringPattern: &schedule.Pattern{Time: "9am"}},
	}
	for _, cfg := range cases {
		_, ok := schedule.Next(cfg, start, end, nil, now)
		assert.False(t, ok, "%+v", cfg)
	}
}

func TestCalculator_UsesClock(t *testing.T) {
	calc := schedule.Calculator{Clock: jst.FixedClock(utc(2024, 6, 9, 0, 0))}
	cfg := schedule.Config{Enabled: true, ExecutionType: schedule.OnEnd}

	got, ok := calc.Next(cfg, utc(2024, 6, 1, 0, 0), ptr(utc(2024, 6, 10, 0, 0)), nil)
	require.True(t, ok)
	assert.Equal(t, utc(2024, 6, 10, 0, 0), got.UTC())
}

func TestNext_IndependentOfHostZone(t *testing.T) {
	zones := []string{"UTC", "America/Los_Angeles", "Asia/Kolkata", "Pacific/Kiritimati"}
	var locs []*time.Location
	for _, name := range zones {
		if loc, err := time.LoadLocation(name); err == nil {
			locs = append(locs, loc)
		}
	}
	if len(locs) < 2 {
		t.Skip("time zone database unavailable")
	}

	saved := time.Local
	defer func() { time.Local = saved }()

	rapid.Check(t, func(rt *rapid.T) {
		cfg := schedule.Config{
			Enabled:       true,
			ExecutionType: rapid.SampledFrom([]schedule.ExecutionType{schedule.OnEnd, schedule.OnEndDelayed, schedule.Recurring}).Draw(rt, "type"),
			DelayDays:     rapid.IntRange(0, 10).Draw(rt, "delay"),
			RecurringPattern: &schedule.Pattern{
				Frequency:  rapid.SampledFrom([]schedule.Frequency{schedule.Daily, schedule.Weekly, schedule.Monthly}).Draw(rt, "freq"),
				Time:       rapid.SampledFrom([]string{"00:00", "09:00", "15:30", "23:59"}).Draw(rt, "time"),
				DaysOfWeek: []int{rapid.IntRange(0, 6).Draw(rt, "dow")},
				DayOfMonth: rapid.IntRange(1, 31).Draw(rt, "dom"),
			},
		}
		now := utc(2024, 1, 1, 0, 0).Add(time.Duration(rapid.Int64Range(0, 365*24*60).Draw(rt, "minute")) * time.Minute)
		start := now.AddDate(0, 0, -rapid.IntRange(0, 30).Draw(rt, "startAgo"))
		end := now.AddDate(0, 0, rapid.IntRange(-5, 30).Draw(rt, "endIn"))

		var want time.Time
		var wantOK bool
		for i, loc := range locs {
			time.Local = loc
			got, ok := schedule.Next(cfg, start.In(loc), ptr(end.In(loc)), nil, now.In(loc))
			if i == 0 {
				want, wantOK = got, ok
				continue
			}
			if ok != wantOK || !got.Equal(want) {
				rt.Fatalf("zone %s: got (%s, %v), want (%s, %v)", loc, got, ok, want, wantOK)
			}
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := []schedule.Config{
		{Enabled: false, ExecutionType: "garbage"},
		{Enabled: true, ExecutionType: schedule.OnEnd},
		{Enabled: true, ExecutionType: schedule.OnEndDelayed, DelayDays: 2},
		{Enabled: true, ExecutionType: schedule.Scheduled, ScheduledDate: "2024-06-15T10:00"},
		{Enabled: true, ExecutionType: schedule.Recurring, RecurringPattern: &schedule.Pattern{Frequency: schedule.Weekly, Time: "08:00", DaysOfWeek: []int{0, 6}}},
	}
	for _, cfg := range valid {
		assert.NoError(t, cfg.Validate(), "%+v", cfg)
	}

	invalid := []schedule.Config{
		{Enabled: true, ExecutionType: "garbage"},
		{Enabled: true, ExecutionType: schedule.OnEndDelayed, DelayDays: -1},
		{Enabled: true, ExecutionType: schedule.Scheduled, ScheduledDate: "soon"},
		{Enabled: true, ExecutionType: schedule.Recurring},
		{Enabled: true, ExecutionType: schedule.Recurring, RecurringPattern: &schedule.Pattern{Frequency: schedule.Weekly, DaysOfWeek: []int{7}}},
		{Enabled: true, ExecutionType: schedule.Recurring, RecurringPattern: &schedule.Pattern{Frequency: schedule.Monthly, DayOfMonth: 32}},
		{Enabled: true, ExecutionType: schedule.OnEnd, RecurringPattern: &schedule.Pattern{Time: "25:00"}},
	}
	for _, cfg := range invalid {
		err := cfg.Validate()
		assert.ErrorIs(t, err, schedule.ErrInvalid, "%+v", cfg)
	}
}
