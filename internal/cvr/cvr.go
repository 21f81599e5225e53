// Package cvr turns tabular analytics rows into conversion-rate figures
// for a single variant.
package cvr

import (
	"strconv"
	"strings"
)

// NotSet is the marker GA4 uses for an empty dimension value.
const NotSet = "(not set)"

// Operator is a filter match type.
type Operator string

const (
	OpExact    Operator = "EXACT"
	OpContains Operator = "CONTAINS"
)

// Filter restricts which rows count towards a side of the ratio.
// Expression is a comma-separated list of candidates.
type Filter struct {
	Dimension  string   `json:"dimension" yaml:"dimension"`
	Operator   Operator `json:"operator" yaml:"operator"`
	Expression string   `json:"expression" yaml:"expression"`
}

// Candidates returns the trimmed, non-empty entries of Expression.
func (f Filter) Candidates() []string {
	var out []string
	for _, c := range strings.Split(f.Expression, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Spec declares how numerator and denominator rows are selected.
type Spec struct {
	Metric               string   `json:"metric" yaml:"metric"`
	NumeratorDimension   string   `json:"numeratorDimension" yaml:"numeratorDimension"`
	NumeratorLabels      []string `json:"numeratorLabels" yaml:"numeratorLabels"`
	DenominatorDimension string   `json:"denominatorDimension" yaml:"denominatorDimension"`
	DenominatorLabels    []string `json:"denominatorLabels" yaml:"denominatorLabels"`
	NumeratorFilters     []Filter `json:"numeratorFilters,omitempty" yaml:"numeratorFilters,omitempty"`
	DenominatorFilters   []Filter `json:"denominatorFilters,omitempty" yaml:"denominatorFilters,omitempty"`
}

// Dimensions lists every dimension s reads, without duplicates.
func (s Spec) Dimensions() []string {
	seen := make(map[string]bool)
	var dims []string
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			dims = append(dims, d)
		}
	}
	add(s.DenominatorDimension)
	add(s.NumeratorDimension)
	for _, f := range s.DenominatorFilters {
		add(f.Dimension)
	}
	for _, f := range s.NumeratorFilters {
		add(f.Dimension)
	}
	return dims
}

// Row is one report row with values aligned to the report headers.
type Row struct {
	Dimensions []string
	Metrics    []string
}

// Report is a tabular analytics result. Extract never mutates it.
type Report struct {
	DimensionHeaders []string
	MetricHeaders    []string
	Rows             []Row
}

// Diagnosis explains a zero result.
type Diagnosis string

const (
	DiagnosisOK            Diagnosis = "ok"
	DiagnosisNoRows        Diagnosis = "no_rows"
	DiagnosisMissingColumn Diagnosis = "missing_column"
)

// Result holds the aggregated counts for one variant.
type Result struct {
	PV  int64
	CV  int64
	CVR float64

	Diagnosis     Diagnosis
	MissingColumn string
}

// Normalize maps empty (after trimming) and "(not set)" values to NotSet and
// trims everything else.
func Normalize(v string) string {
	t := strings.TrimSpace(v)
	if t == "" || t == NotSet {
		return NotSet
	}
	return t
}

// Extract computes pv, cv and cvr for spec over report. Missing columns and
// empty reports yield zero counts; Diagnosis says which case applied.
func Extract(report Report, spec Spec) Result {
	denIdx := indexOf(report.DimensionHeaders, spec.DenominatorDimension)
	numIdx := indexOf(report.DimensionHeaders, spec.NumeratorDimension)
	metricIdx := indexOf(report.MetricHeaders, spec.Metric)

	switch {
	case denIdx < 0:
		return missing(spec.DenominatorDimension)
	case numIdx < 0:
		return missing(spec.NumeratorDimension)
	case metricIdx < 0:
		return missing(spec.Metric)
	case len(report.Rows) == 0:
		return Result{Diagnosis: DiagnosisNoRows}
	}

	denLabels := labelSet(spec.DenominatorLabels)
	numLabels := labelSet(spec.NumeratorLabels)
	denFilters := bind(report.DimensionHeaders, spec.DenominatorFilters)
	numFilters := bind(report.DimensionHeaders, spec.NumeratorFilters)

	var pv, cv int64
	for _, row := range report.Rows {
		value := parseMetric(at(row.Metrics, metricIdx))

		if denLabels[Normalize(at(row.Dimensions, denIdx))] && matchAll(row, denFilters) {
			pv += value
		}
		if numLabels[Normalize(at(row.Dimensions, numIdx))] && matchAll(row, numFilters) {
			cv += value
		}
	}

	res := Result{PV: pv, CV: cv, Diagnosis: DiagnosisOK}
	if pv > 0 {
		res.CVR = float64(cv) / float64(pv)
	}
	return res
}

// Match reports whether value satisfies the filter.
func (f Filter) Match(value string) bool {
	candidates := f.Candidates()
	switch f.Operator {
	case OpContains:
		for _, c := range candidates {
			if strings.Contains(value, c) {
				return true
			}
		}
		return false
	default:
		normalized := Normalize(value)
		for _, c := range candidates {
			if normalized == c {
				return true
			}
		}
		return false
	}
}

type boundFilter struct {
	index  int
	filter Filter
}

// bind resolves filter columns. Filters on unknown dimensions are dropped,
// which makes them pass.
func bind(headers []string, filters []Filter) []boundFilter {
	var out []boundFilter
	for _, f := range filters {
		if idx := indexOf(headers, f.Dimension); idx >= 0 {
			out = append(out, boundFilter{index: idx, filter: f})
		}
	}
	return out
}

func matchAll(row Row, filters []boundFilter) bool {
	for _, bf := range filters {
		if !bf.filter.Match(at(row.Dimensions, bf.index)) {
			return false
		}
	}
	return true
}

func labelSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[Normalize(l)] = true
	}
	return set
}

func missing(column string) Result {
	return Result{Diagnosis: DiagnosisMissingColumn, MissingColumn: column}
}

func indexOf(headers []string, name string) int {
	if name == "" {
		return -1
	}
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func at(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return values[i]
}

func parseMetric(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}
