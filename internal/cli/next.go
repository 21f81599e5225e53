package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/dispatch"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/schedule"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next <id|name>",
	Short: "Show when an experiment will next be evaluated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			exp, err := findExperiment(context.Background(), s, args[0])
			if err != nil {
				return err
			}
			printNext(cmd.OutOrStdout(), exp, jst.SystemClock{}.Now())
			return nil
		})
	},
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List experiments due for evaluation now",
	Long: `List experiments whose next evaluation has arrived and has not run yet.

This is the same check the server's poller performs every interval.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.SQLiteStore) error {
			d := &dispatch.Dispatcher{Experiments: s, History: s, Clock: jst.SystemClock{}}
			due, err := d.FindDueSlots(context.Background())
			if err != nil {
				return err
			}

			if len(due) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing is due.")
				return nil
			}
			for _, x := range due {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d\tdue since %s\n", x.ID, formatTime(&x.Slot))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(nextCmd, dueCmd)
}

func printNext(out io.Writer, exp *store.Experiment, now time.Time) {
	if exp.Schedule == nil || !exp.Schedule.Enabled {
		fmt.Fprintf(out, "'%s' has no automatic schedule.\n", exp.Name)
		return
	}

	next, ok := schedule.Next(*exp.Schedule, exp.StartDate, exp.EndDate, exp.LastExecutedAt, now)
	if !ok {
		fmt.Fprintf(out, "'%s' (%s) has no upcoming evaluation.\n", exp.Name, describeSchedule(exp.Schedule))
		return
	}

	fmt.Fprintf(out, "'%s' (%s) next evaluates at %s (UTC+9)\n", exp.Name, describeSchedule(exp.Schedule), formatTime(&next))
	if exp.State != store.StateRunning || !exp.AutoExecute {
		fmt.Fprintf(out, "Note: automatic execution is off (state %s, autoExecute %t).\n", exp.State, exp.AutoExecute)
	}
}
