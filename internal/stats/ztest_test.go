package stats_test

import (
	"math"
	"testing"

	"github.com/gkobilansky/ga4-goat/internal/stats"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestZTest_ClearWinner(t *testing.T) {
	// 10% vs 5% on 1000 views each.
	got := stats.ZTest(100, 1000, 50, 1000)

	assert.Equal(t, 99, got.Significance)
	assert.True(t, got.IsSignificant)
	assert.InDelta(t, 4.245, got.ZScore, 0.01)
}

func TestZTest_EqualRates(t *testing.T) {
	got := stats.ZTest(50, 1000, 50, 1000)

	assert.Equal(t, 0, got.Significance)
	assert.Equal(t, 0.0, got.ZScore)
	assert.False(t, got.IsSignificant)
}

func TestZTest_SmallSample(t *testing.T) {
	got := stats.ZTest(5, 20, 2, 20)

	if got.IsSignificant {
		t.Errorf("expected small sample not to be significant, got %+v", got)
	}
	if got.Significance > 90 {
		t.Errorf("significance %d above cap for |z| < 1.65", got.Significance)
	}
}

func TestZTest_Degenerate(t *testing.T) {
	tests := []struct {
		name               string
		cv1, pv1, cv2, pv2 int64
	}{
		{"zero views", 0, 0, 0, 0},
		{"one side empty", 10, 100, 0, 0},
		{"negative conversions", -1, 100, 5, 100},
		{"zero pooled variance", 0, 100, 0, 100},
		{"all converted", 100, 100, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, stats.ZResult{}, stats.ZTest(tt.cv1, tt.pv1, tt.cv2, tt.pv2))
		})
	}
}

func TestSignificanceLevel_Breakpoints(t *testing.T) {
	tests := []struct {
		z    float64
		want int
	}{
		{3.0, 99},
		{2.58, 99},
		{-2.58, 99},
		{2.0, 95},
		{1.96, 95},
		{1.7, 90},
		{1.65, 90},
		{1.0, 68},
		{0.5, 38},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stats.SignificanceLevel(tt.z), "z=%v", tt.z)
	}
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, stats.NormalCDF(0), 1e-6)
	assert.InDelta(t, 0.975, stats.NormalCDF(1.96), 1e-4)
	assert.InDelta(t, 0.025, stats.NormalCDF(-1.96), 1e-4)
	assert.InDelta(t, 0.8413, stats.NormalCDF(1), 1e-4)
}

func TestZTest_Symmetry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		pv1 := rapid.Int64Range(1, 100000).Draw(rt, "pv1")
		pv2 := rapid.Int64Range(1, 100000).Draw(rt, "pv2")
		cv1 := rapid.Int64Range(0, pv1).Draw(rt, "cv1")
		cv2 := rapid.Int64Range(0, pv2).Draw(rt, "cv2")

		ab := stats.ZTest(cv1, pv1, cv2, pv2)
		ba := stats.ZTest(cv2, pv2, cv1, pv1)

		if math.Abs(ab.ZScore+ba.ZScore) > 1e-9 {
			rt.Fatalf("z(a,b)=%v, z(b,a)=%v", ab.ZScore, ba.ZScore)
		}
		if ab.Significance != ba.Significance {
			rt.Fatalf("significance differs: %d vs %d", ab.Significance, ba.Significance)
		}
		if ab.Significance < 0 || ab.Significance > 99 {
			rt.Fatalf("significance %d out of range", ab.Significance)
		}
	})
}
