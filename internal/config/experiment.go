package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"gopkg.in/yaml.v3"
)

// ExperimentFile is the YAML layout of an experiment definition.
type ExperimentFile struct {
	Name        string           `yaml:"name"`
	PropertyID  string           `yaml:"propertyId"`
	StartDate   string           `yaml:"startDate"`
	EndDate     string           `yaml:"endDate"`
	AutoExecute bool             `yaml:"autoExecute"`
	Schedule    *schedule.Config `yaml:"schedule"`
	Evaluation  judge.Config     `yaml:"evaluation"`
	// Spec is the default extraction rule for variants that omit one.
	Spec     *cvr.Spec     `yaml:"spec"`
	Variants []VariantFile `yaml:"variants"`
}

type VariantFile struct {
	Label         string       `yaml:"label"`
	Spec          *cvr.Spec    `yaml:"spec"`
	ReportFilters []cvr.Filter `yaml:"reportFilters"`
}

// LoadExperimentFile reads and validates a YAML experiment definition.
func LoadExperimentFile(path string) (*store.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}
	return ParseExperiment(data)
}

// ParseExperiment decodes YAML on top of the default evaluation thresholds.
func ParseExperiment(data []byte) (*store.Experiment, error) {
	f := ExperimentFile{Evaluation: judge.DefaultConfig()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse experiment file: %w", err)
	}
	return f.Experiment()
}

// Experiment validates f and converts it to a new store.Experiment.
func (f ExperimentFile) Experiment() (*store.Experiment, error) {
	var errs []error

	name := strings.TrimSpace(f.Name)
	if name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(f.PropertyID) == "" {
		errs = append(errs, errors.New("propertyId is required"))
	}

	start, err := jst.ParseDate(f.StartDate)
	if err != nil {
		errs = append(errs, fmt.Errorf("startDate: %w", err))
	}

	exp := &store.Experiment{
		Name:        name,
		PropertyID:  strings.TrimSpace(f.PropertyID),
		State:       store.StateRunning,
		AutoExecute: f.AutoExecute,
		StartDate:   start,
		Schedule:    f.Schedule,
		Evaluation:  f.Evaluation,
	}

	if f.EndDate != "" {
		end, err := jst.ParseDate(f.EndDate)
		if err != nil {
			errs = append(errs, fmt.Errorf("endDate: %w", err))
		} else if !start.IsZero() && end.Before(start) {
			errs = append(errs, errors.New("endDate is before startDate"))
		} else {
			exp.EndDate = &end
		}
	}

	if f.Schedule != nil {
		if err := f.Schedule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}
	if f.AutoExecute && (f.Schedule == nil || !f.Schedule.Enabled) {
		errs = append(errs, errors.New("autoExecute needs an enabled schedule"))
	}

	variants, err := f.variants()
	if err != nil {
		errs = append(errs, err)
	}
	exp.Variants = variants

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	return exp, nil
}

func (f ExperimentFile) variants() ([]store.VariantDef, error) {
	if n := len(f.Variants); n < 2 || n > judge.MaxVariants {
		return nil, fmt.Errorf("need 2 to %d variants, got %d", judge.MaxVariants, n)
	}

	seen := make(map[judge.Label]bool)
	defs := make([]store.VariantDef, 0, len(f.Variants))
	for i, v := range f.Variants {
		label, err := judge.ParseLabel(v.Label)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i+1, err)
		}
		if seen[label] {
			return nil, fmt.Errorf("variant %s is defined twice", label)
		}
		seen[label] = true

		spec := v.Spec
		if spec == nil {
			spec = f.Spec
		}
		if spec == nil {
			return nil, fmt.Errorf("variant %s has no spec and there is no default spec", label)
		}
		if spec.Metric == "" || spec.NumeratorDimension == "" || spec.DenominatorDimension == "" {
			return nil, fmt.Errorf("variant %s: spec needs metric, numeratorDimension and denominatorDimension", label)
		}

		defs = append(defs, store.VariantDef{Label: label, Spec: *spec, ReportFilters: v.ReportFilters})
	}
	return defs, nil
}
