package judge

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/stats"
)

// Config holds the pass thresholds. A nil MinSignificance means the
// required level is derived with stats.HybridThreshold.
type Config struct {
	MinSignificance    *int    `json:"minSignificance" yaml:"minSignificance"`
	MinPV              int64   `json:"minPV" yaml:"minPV"`
	MinDays            int     `json:"minDays" yaml:"minDays"`
	MinImprovementRate float64 `json:"minImprovementRate" yaml:"minImprovementRate"`
	MinDifferencePt    float64 `json:"minDifferencePt" yaml:"minDifferencePt"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinPV:              1000,
		MinDays:            14,
		MinImprovementRate: 5,
		MinDifferencePt:    0.5,
	}
}

type SignificanceCheck struct {
	Passed      bool    `json:"passed"`
	Value       int     `json:"value"`
	ZScore      float64 `json:"zScore"`
	Required    int     `json:"required"`
	PeriodBased int     `json:"periodBased"`
	CVBased     int     `json:"cvBased"`
	PVBased     int     `json:"pvBased"`
}

type SampleSizeCheck struct {
	Passed     bool             `json:"passed"`
	WinnerPV   int64            `json:"winnerPV"`
	RunnerUpPV int64            `json:"runnerUpPV"`
	MinPV      int64            `json:"minPV"`
	ByVariant  map[string]int64 `json:"byVariant,omitempty"`
}

type PeriodCheck struct {
	Passed      bool   `json:"passed"`
	Days        int    `json:"days"`
	MinDays     int    `json:"minDays"`
	Reliability string `json:"reliability"`
	Icon        string `json:"icon"`
	Note        string `json:"note"`
}

type ImprovementCheck struct {
	Passed          bool    `json:"passed"`
	Rate            float64 `json:"improvementRate"`
	DifferencePt    float64 `json:"differencePt"`
	MinRate         float64 `json:"minImprovementRate"`
	MinDifferencePt float64 `json:"minDifferencePt"`
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Winner         Label             `json:"winner"`
	RunnerUp       Label             `json:"runnerUp"`
	Baseline       Label             `json:"baseline"`
	BaselineWins   bool              `json:"baselineWins"`
	Significance   SignificanceCheck `json:"significance"`
	SampleSize     SampleSizeCheck   `json:"sampleSize"`
	Period         PeriodCheck       `json:"period"`
	Improvement    ImprovementCheck  `json:"improvement"`
	AllPassed      bool              `json:"allPassed"`
	Recommendation string            `json:"recommendation"`
}

// DaysBetween counts calendar days from start to end inclusively.
func DaysBetween(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours()/24)) + 1
}

// Evaluate compares winner against runnerUp and applies the significance,
// sample size, period and improvement checks. all carries every arm of the
// test and is used to locate the baseline.
func Evaluate(winner, runnerUp Variant, start, end time.Time, cfg Config, all []Variant) Verdict {
	days := DaysBetween(start, end)

	threshold := stats.HybridThreshold(days, winner.CV, runnerUp.CV, winner.PV, runnerUp.PV)
	if cfg.MinSignificance != nil {
		threshold = stats.Uniform(*cfg.MinSignificance)
	}

	z := stats.ZTest(winner.CV, winner.PV, runnerUp.CV, runnerUp.PV)

	v := Verdict{
		Winner:   winner.Label,
		RunnerUp: runnerUp.Label,
		Significance: SignificanceCheck{
			Passed:      z.Significance >= threshold.Required,
			Value:       z.Significance,
			ZScore:      z.ZScore,
			Required:    threshold.Required,
			PeriodBased: threshold.PeriodBased,
			CVBased:     threshold.CVBased,
			PVBased:     threshold.PVBased,
		},
		SampleSize: sampleSize(winner, runnerUp, cfg.MinPV, all),
		Period:     period(days, cfg.MinDays),
	}

	baseline, hasBaseline := find(all, LabelA)
	v.BaselineWins = winner.Label.IsBaseline() || (hasBaseline && leadsAll(baseline, all))

	if v.BaselineWins {
		if !hasBaseline {
			baseline = winner
		}
		other := winner
		if winner.Label.IsBaseline() {
			other = runnerUp
		}
		v.Baseline = LabelA
		v.Improvement = ImprovementCheck{
			Passed:          false,
			Rate:            -100,
			DifferencePt:    (baseline.CVR() - other.CVR()) * 100,
			MinRate:         cfg.MinImprovementRate,
			MinDifferencePt: cfg.MinDifferencePt,
		}
		v.AllPassed = false
		v.Recommendation = baselineMessage(other)
		return v
	}

	if !hasBaseline {
		baseline = runnerUp
	}
	v.Baseline = baseline.Label
	v.Improvement = improvement(winner, baseline, cfg)

	v.AllPassed = v.Significance.Passed && v.SampleSize.Passed && v.Period.Passed && v.Improvement.Passed
	if v.AllPassed {
		v.Recommendation = fmt.Sprintf(
			"パターン%sがパターン%sに対して改善率%.1f%%（%+.2fpt）で、すべての判定基準を満たしました。パターン%sの採用を推奨します。",
			winner.Label, baseline.Label, v.Improvement.Rate, v.Improvement.DifferencePt, winner.Label)
	} else {
		v.Recommendation = fmt.Sprintf(
			"パターン%sがパターン%sをリードしていますが、未達の判定基準があります（%s）。テストの継続を推奨します。",
			winner.Label, baseline.Label, strings.Join(v.failedChecks(), "、"))
	}
	return v
}

func sampleSize(winner, runnerUp Variant, minPV int64, all []Variant) SampleSizeCheck {
	c := SampleSizeCheck{
		Passed:     winner.PV >= minPV && runnerUp.PV >= minPV,
		WinnerPV:   winner.PV,
		RunnerUpPV: runnerUp.PV,
		MinPV:      minPV,
	}
	if len(all) > 0 {
		c.ByVariant = make(map[string]int64, len(all))
		for _, v := range all {
			c.ByVariant[v.Label.String()] = v.PV
		}
	}
	return c
}

type reliability struct {
	below int
	label string
	icon  string
	note  string
}

var reliabilityBuckets = []reliability{
	{3, "信憑性低", "⚠️", "週次変動未考慮"},
	{7, "信憑性低", "⚠️", "1週間未満"},
	{14, "信憑性中", "⚠️", "1週間のみ"},
	{21, "信憑性高", "✅", "2週間、推奨"},
	{28, "信憑性非常に高", "✅", "3週間以上"},
}

func period(days, minDays int) PeriodCheck {
	c := PeriodCheck{
		Passed:      days >= minDays,
		Days:        days,
		MinDays:     minDays,
		Reliability: "信憑性極めて高",
		Icon:        "✅",
		Note:        "月次変動も考慮",
	}
	for _, b := range reliabilityBuckets {
		if days < b.below {
			c.Reliability, c.Icon, c.Note = b.label, b.icon, b.note
			break
		}
	}
	return c
}

func improvement(variant, baseline Variant, cfg Config) ImprovementCheck {
	vr, br := variant.CVR(), baseline.CVR()

	var rate float64
	if baseline.CV > 0 && baseline.PV > 0 {
		rate = (vr - br) / br * 100
	}
	diff := (vr - br) * 100

	return ImprovementCheck{
		Passed:          rate >= cfg.MinImprovementRate || diff >= cfg.MinDifferencePt,
		Rate:            rate,
		DifferencePt:    diff,
		MinRate:         cfg.MinImprovementRate,
		MinDifferencePt: cfg.MinDifferencePt,
	}
}

// leadsAll reports whether v's CVR is strictly above every other arm's.
func leadsAll(v Variant, all []Variant) bool {
	others := 0
	for _, o := range all {
		if o.Label == v.Label {
			continue
		}
		others++
		if o.CVR() >= v.CVR() {
			return false
		}
	}
	return others > 0
}

func baselineMessage(challenger Variant) string {
	return fmt.Sprintf(
		"パターンA（オリジナル）のCVRが最も高く、Aを上回るパターンはありません。次点のパターン%sもAを下回っています。現行のAを維持し、新しい仮説での再テストを推奨します。",
		challenger.Label)
}

func (v Verdict) failedChecks() []string {
	var failed []string
	if !v.Significance.Passed {
		failed = append(failed, "有意差")
	}
	if !v.SampleSize.Passed {
		failed = append(failed, "サンプルサイズ")
	}
	if !v.Period.Passed {
		failed = append(failed, "期間")
	}
	if !v.Improvement.Passed {
		failed = append(failed, "改善率")
	}
	return failed
}
