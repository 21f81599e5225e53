package stats

// Threshold is the minimum significance a test must reach, with the three
// heuristics it was derived from.
type Threshold struct {
	Required    int
	PeriodBased int
	CVBased     int
	PVBased     int
}

// Uniform returns a threshold whose fields all equal level.
func Uniform(level int) Threshold {
	return Threshold{Required: level, PeriodBased: level, CVBased: level, PVBased: level}
}

// HybridThreshold takes the strictest of the period, conversion-count and
// traffic-volume requirements.
func HybridThreshold(days int, cv1, cv2, pv1, pv2 int64) Threshold {
	t := Threshold{
		PeriodBased: periodLevel(days),
		CVBased:     countLevel(min(cv1, cv2), cvSteps),
		PVBased:     countLevel(min(pv1, pv2), pvSteps),
	}
	t.Required = max(t.PeriodBased, t.CVBased, t.PVBased)
	return t
}

type step struct {
	atLeast int64
	level   int
}

var periodSteps = []step{{28, 99}, {21, 95}, {14, 90}, {7, 85}, {3, 70}}

var cvSteps = []step{{1000, 99}, {500, 95}, {200, 90}, {100, 85}, {50, 70}}

var pvSteps = []step{{10000, 99}, {5000, 95}, {2000, 90}, {1000, 85}, {500, 70}}

func periodLevel(days int) int {
	return countLevel(int64(days), periodSteps)
}

func countLevel(n int64, steps []step) int {
	for _, s := range steps {
		if n >= s.atLeast {
			return s.level
		}
	}
	return 50
}
