package stats_test

import (
	"testing"

	"github.com/gkobilansky/ga4-goat/internal/stats"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestHybridThreshold_TakesStrictest(t *testing.T) {
	got := stats.HybridThreshold(10, 300, 300, 3000, 3000)

	assert.Equal(t, stats.Threshold{Required: 90, PeriodBased: 85, CVBased: 90, PVBased: 90}, got)
}

func TestHybridThreshold_Buckets(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		cv, pv   int64
		expected stats.Threshold
	}{
		{"nothing", 1, 0, 0, stats.Threshold{Required: 50, PeriodBased: 50, CVBased: 50, PVBased: 50}},
		{"three days", 3, 49, 499, stats.Threshold{Required: 70, PeriodBased: 70, CVBased: 50, PVBased: 50}},
		{"a week", 7, 50, 500, stats.Threshold{Required: 85, PeriodBased: 85, CVBased: 70, PVBased: 70}},
		{"two weeks", 14, 100, 1000, stats.Threshold{Required: 90, PeriodBased: 90, CVBased: 85, PVBased: 85}},
		{"three weeks", 21, 200, 2000, stats.Threshold{Required: 95, PeriodBased: 95, CVBased: 90, PVBased: 90}},
		{"high volume", 5, 500, 5000, stats.Threshold{Required: 95, PeriodBased: 70, CVBased: 95, PVBased: 95}},
		{"month", 28, 1000, 10000, stats.Threshold{Required: 99, PeriodBased: 99, CVBased: 99, PVBased: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stats.HybridThreshold(tt.days, tt.cv, tt.cv*3, tt.pv, tt.pv*2))
		})
	}
}

func TestHybridThreshold_UsesMinimumOfPair(t *testing.T) {
	got := stats.HybridThreshold(1, 2000, 10, 50000, 100)
	assert.Equal(t, 50, got.CVBased)
	assert.Equal(t, 50, got.PVBased)
}

func TestHybridThreshold_Monotone(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		days := rapid.IntRange(0, 60).Draw(rt, "days")
		cv := rapid.Int64Range(0, 2000).Draw(rt, "cv")
		pv := rapid.Int64Range(0, 20000).Draw(rt, "pv")
		dd := rapid.IntRange(0, 30).Draw(rt, "dd")
		dc := rapid.Int64Range(0, 1000).Draw(rt, "dc")
		dp := rapid.Int64Range(0, 10000).Draw(rt, "dp")

		base := stats.HybridThreshold(days, cv, cv, pv, pv).Required

		if got := stats.HybridThreshold(days+dd, cv, cv, pv, pv).Required; got < base {
			rt.Fatalf("required decreased with days: %d -> %d", base, got)
		}
		if got := stats.HybridThreshold(days, cv+dc, cv+dc, pv, pv).Required; got < base {
			rt.Fatalf("required decreased with cv: %d -> %d", base, got)
		}
		if got := stats.HybridThreshold(days, cv, cv, pv+dp, pv+dp).Required; got < base {
			rt.Fatalf("required decreased with pv: %d -> %d", base, got)
		}
	})
}

func TestUniform(t *testing.T) {
	assert.Equal(t, stats.Threshold{Required: 80, PeriodBased: 80, CVBased: 80, PVBased: 80}, stats.Uniform(80))
}
