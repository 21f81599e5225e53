// Package judge decides whether an A/B test result is trustworthy and
// actionable.
package judge

import (
	"fmt"
	"sort"
	"strings"
)

// Label identifies an experiment arm. LabelA is always the baseline.
type Label int

const (
	LabelA Label = iota
	LabelB
	LabelC
	LabelD
)

// MaxVariants is the largest number of arms an experiment may have.
const MaxVariants = 4

// ParseLabel accepts "A".."D" (case-insensitive).
func ParseLabel(s string) (Label, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'D' {
		return 0, fmt.Errorf("invalid variant label %q: want A, B, C or D", s)
	}
	return Label(s[0] - 'A'), nil
}

func (l Label) String() string {
	if l < LabelA || l > LabelD {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return string(rune('A' + int(l)))
}

// IsBaseline reports whether l is the control arm.
func (l Label) IsBaseline() bool { return l == LabelA }

func (l Label) MarshalText() ([]byte, error) {
	if l < LabelA || l > LabelD {
		return nil, fmt.Errorf("invalid variant label %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Variant is one arm's aggregated counts.
type Variant struct {
	Label Label `json:"name"`
	PV    int64 `json:"pv"`
	CV    int64 `json:"cv"`
}

// CVR returns cv/pv, or 0 when pv is 0.
func (v Variant) CVR() float64 {
	if v.PV == 0 {
		return 0
	}
	return float64(v.CV) / float64(v.PV)
}

// PickLeaders returns the variants with the highest and second-highest CVR.
// Ties go to the earlier label, so a tied baseline counts as the leader.
func PickLeaders(variants []Variant) (winner, runnerUp Variant, ok bool) {
	if len(variants) < 2 {
		return Variant{}, Variant{}, false
	}
	ranked := make([]Variant, len(variants))
	copy(ranked, variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].CVR(), ranked[j].CVR()
		if ri != rj {
			return ri > rj
		}
		return ranked[i].Label < ranked[j].Label
	})
	return ranked[0], ranked[1], true
}

func find(variants []Variant, l Label) (Variant, bool) {
	for _, v := range variants {
		if v.Label == l {
			return v, true
		}
	}
	return Variant{}, false
}
