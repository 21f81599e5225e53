// Package stats holds the significance math used to judge A/B tests.
package stats

import "math"

// ZResult is the outcome of a two-proportion z-test.
type ZResult struct {
	Significance  int     // discrete confidence level, 0..99
	ZScore        float64 // signed; positive when the first rate is larger
	IsSignificant bool    // Significance >= 95
}

// ZTest compares conversion rates cv1/pv1 and cv2/pv2 with a pooled
// two-proportion z-test. Degenerate inputs return the zero result.
func ZTest(cv1, pv1, cv2, pv2 int64) ZResult {
	if pv1 == 0 || pv2 == 0 || cv1 < 0 || cv2 < 0 {
		return ZResult{}
	}

	n1, n2 := float64(pv1), float64(pv2)
	p1 := float64(cv1) / n1
	p2 := float64(cv2) / n2

	pooled := float64(cv1+cv2) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 || math.IsNaN(se) {
		return ZResult{}
	}

	z := (p1 - p2) / se
	sig := SignificanceLevel(z)

	return ZResult{
		Significance:  sig,
		ZScore:        z,
		IsSignificant: sig >= 95,
	}
}

// SignificanceLevel maps |z| onto the discrete levels 99/95/90 and, below
// the 90% breakpoint, onto the two-sided confidence capped at 90.
func SignificanceLevel(z float64) int {
	az := math.Abs(z)
	switch {
	case az >= 2.58:
		return 99
	case az >= 1.96:
		return 95
	case az >= 1.65:
		return 90
	}
	conf := 1 - 2*(1-NormalCDF(az))
	level := int(math.Round(conf * 100))
	if level > 90 {
		level = 90
	}
	if level < 0 {
		level = 0
	}
	return level
}

// NormalCDF approximates the standard normal CDF
// (Abramowitz and Stegun 26.2.17).
func NormalCDF(x float64) float64 {
	const (
		b1 = 0.3193815
		b2 = -0.3565638
		b3 = 1.781478
		b4 = -1.821256
		b5 = 1.330274
		p  = 0.2316419
	)

	ax := math.Abs(x)
	t := 1 / (1 + p*ax)
	pdf := math.Exp(-ax*ax/2) / math.Sqrt(2*math.Pi)
	upper := pdf * t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))

	if x < 0 {
		return upper
	}
	return 1 - upper
}
