package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gkobilansky/ga4-goat/internal/config"
	"github.com/gkobilansky/ga4-goat/internal/cvr"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		file        string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new experiment",
		Long: `Create a new experiment from a YAML definition or interactively.

Examples:
  ga4-goat create -f hero.yaml
  ga4-goat create --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == !interactive {
				return fmt.Errorf("use either -f <file> or --interactive")
			}

			var (
				exp *store.Experiment
				err error
			)
			if interactive {
				exp, err = promptExperiment()
			} else {
				exp, err = config.LoadExperimentFile(file)
			}
			if err != nil {
				return err
			}

			return withStore(func(s *store.SQLiteStore) error {
				created, err := s.CreateExperiment(context.Background(), exp)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}
				printCreated(cmd.OutOrStdout(), created)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML experiment definition")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "answer prompts instead of using a file")

	return cmd
}

func printCreated(out io.Writer, exp *store.Experiment) {
	fmt.Fprintf(out, "Created experiment '%s' (#%d) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
	for _, v := range exp.Variants {
		fmt.Fprintf(out, "  %s: %s %v / %s %v\n", v.Label,
			v.Spec.NumeratorDimension, v.Spec.NumeratorLabels,
			v.Spec.DenominatorDimension, v.Spec.DenominatorLabels)
		for _, f := range v.ReportFilters {
			fmt.Fprintf(out, "     filter %s %s %q\n", f.Dimension, f.Operator, f.Expression)
		}
	}
	fmt.Fprintf(out, "  Period: %s..%s\n", formatDate(&exp.StartDate), formatDate(exp.EndDate))
	fmt.Fprintf(out, "  Schedule: %s\n", describeSchedule(exp.Schedule))
}

// promptExperiment builds a page_view/click experiment with one pagePath
// filter per variant.
func promptExperiment() (*store.Experiment, error) {
	name, err := promptText("Experiment name", "", required)
	if err != nil {
		return nil, err
	}
	property, err := promptText("GA4 property ID", "", required)
	if err != nil {
		return nil, err
	}
	start, err := promptText("Start date (YYYY-MM-DD)", jst.FormatDate(jst.SystemClock{}.Now()), isDate)
	if err != nil {
		return nil, err
	}
	end, err := promptText("End date (YYYY-MM-DD)", "", isDate)
	if err != nil {
		return nil, err
	}
	numerator, err := promptText("Conversion event name", "click", required)
	if err != nil {
		return nil, err
	}

	countItems := []string{"2 (A/B)", "3 (A/B/C)", "4 (A/B/C/D)"}
	countIdx, err := promptSelect("Number of variants", countItems)
	if err != nil {
		return nil, err
	}

	f := config.ExperimentFile{
		Name:       name,
		PropertyID: property,
		StartDate:  start,
		EndDate:    end,
		Evaluation: judge.DefaultConfig(),
		Spec: &cvr.Spec{
			Metric:               "eventCount",
			DenominatorDimension: "eventName",
			DenominatorLabels:    []string{"page_view"},
			NumeratorDimension:   "eventName",
			NumeratorLabels:      []string{numerator},
		},
	}

	for i := 0; i < countIdx+2; i++ {
		label := judge.Label(i).String()
		path, err := promptText(fmt.Sprintf("Page path for variant %s", label), "", required)
		if err != nil {
			return nil, err
		}
		f.Variants = append(f.Variants, config.VariantFile{
			Label:         label,
			ReportFilters: []cvr.Filter{{Dimension: "pagePath", Operator: cvr.OpExact, Expression: path}},
		})
	}

	sched, err := promptSchedule()
	if err != nil {
		return nil, err
	}
	f.Schedule = sched
	f.AutoExecute = sched != nil

	return f.Experiment()
}

func promptSchedule() (*schedule.Config, error) {
	items := []string{
		"Manual only",
		"Once, on the end date",
		"Once, N days after the end date",
		"Once, at a specific date and time",
		"Every day",
		"Every week",
		"Every month",
	}
	idx, err := promptSelect("Automatic evaluation", items)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		return nil, nil
	}

	cfg := &schedule.Config{Enabled: true}
	pattern := &schedule.Pattern{}

	switch idx {
	case 1:
		cfg.ExecutionType = schedule.OnEnd
	case 2:
		cfg.ExecutionType = schedule.OnEndDelayed
		days, err := promptText("Delay in days", "3", isNonNegativeInt)
		if err != nil {
			return nil, err
		}
		fmt.Sscanf(days, "%d", &cfg.DelayDays)
	case 3:
		cfg.ExecutionType = schedule.Scheduled
		at, err := promptText("Date and time (YYYY-MM-DDTHH:MM, UTC+9)", "", isDateTime)
		if err != nil {
			return nil, err
		}
		cfg.ScheduledDate = at
		return cfg, nil
	case 4:
		cfg.ExecutionType = schedule.Recurring
		pattern.Frequency = schedule.Daily
	case 5:
		cfg.ExecutionType = schedule.Recurring
		pattern.Frequency = schedule.Weekly
		weekdays := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
		day, err := promptSelect("Day of week", weekdays)
		if err != nil {
			return nil, err
		}
		pattern.DaysOfWeek = []int{day}
	case 6:
		cfg.ExecutionType = schedule.Recurring
		pattern.Frequency = schedule.Monthly
		dom, err := promptText("Day of month (1-31)", "1", isNonNegativeInt)
		if err != nil {
			return nil, err
		}
		fmt.Sscanf(dom, "%d", &pattern.DayOfMonth)
	}

	at, err := promptText("Time of day (HH:MM, UTC+9)", schedule.DefaultTime, isHHMM)
	if err != nil {
		return nil, err
	}
	pattern.Time = at
	cfg.RecurringPattern = pattern
	return cfg, nil
}

func promptText(label, def string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: validate,
	}
	value, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func promptSelect(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	idx, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			os.Exit(0)
		}
		return 0, err
	}
	return idx, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func isDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	_, err := jst.ParseDate(s)
	return err
}

func isDateTime(s string) error {
	_, err := jst.ParseLocal(s)
	return err
}

func isHHMM(s string) error {
	_, _, err := jst.ParseHHMM(s)
	return err
}

func isNonNegativeInt(s string) error {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil || n < 0 {
		return errors.New("enter a whole number")
	}
	return nil
}
