package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// WilsonInterval calculates the Wilson score confidence interval
// for a binomial proportion. It's more accurate for small samples
// than the normal approximation.
func WilsonInterval(successes, trials int64, confidence float64) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}

	z := CriticalValue(confidence)
	p := float64(successes) / float64(trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return math.Max(0, center-spread), math.Min(1, center+spread)
}

// CriticalValue returns the two-sided z critical value for a confidence
// level in (0, 1), e.g. 0.95 -> 1.96.
func CriticalValue(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		confidence = 0.9999
	}
	return distuv.UnitNormal.Quantile((1 + confidence) / 2)
}

// ConfidenceFor converts a significance level in percent (as carried by
// judge verdicts) to a confidence in (0, 1), falling back to 0.95 when the
// level is out of range.
func ConfidenceFor(level int) float64 {
	if level <= 0 || level >= 100 {
		return 0.95
	}
	return float64(level) / 100
}
