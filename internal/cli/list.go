package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their state, schedule and next execution.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		exps, err := s.ListExperiments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(exps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No experiments yet.")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Create one from a YAML definition:")
			fmt.Fprintln(cmd.OutOrStdout(), "  ga4-goat create -f experiment.yaml")
			return nil
		}

		printExperiments(cmd.OutOrStdout(), exps, time.Now())
		return nil
	})
}

func printExperiments(out io.Writer, exps []*store.Experiment, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tVARIANTS\tSCHEDULE\tPERIOD\tLAST RUN\tNEXT RUN")

	for _, exp := range exps {
		var next *time.Time
		if exp.Schedule != nil {
			if t, ok := schedule.Next(*exp.Schedule, exp.StartDate, exp.EndDate, exp.LastExecutedAt, now); ok {
				next = &t
			}
		}

		state := strings.ToUpper(string(exp.State))
		if exp.AutoExecute {
			state += " (auto)"
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s..%s\t%s\t%s\n",
			exp.ID,
			exp.Name,
			state,
			len(exp.Variants),
			describeSchedule(exp.Schedule),
			formatDate(&exp.StartDate),
			formatDate(exp.EndDate),
			formatTime(exp.LastExecutedAt),
			formatTime(next),
		)
	}

	w.Flush()
}

func describeSchedule(cfg *schedule.Config) string {
	if cfg == nil || !cfg.Enabled {
		return "manual"
	}
	switch cfg.ExecutionType {
	case schedule.OnEndDelayed:
		return fmt.Sprintf("on_end+%dd", cfg.DelayDays)
	case schedule.Scheduled:
		return "at " + cfg.ScheduledDate
	case schedule.Recurring:
		if p := cfg.RecurringPattern; p != nil {
			return string(p.Frequency) + " " + p.Time
		}
	}
	return string(cfg.ExecutionType)
}
