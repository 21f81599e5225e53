package cli

import (
	"context"
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run <id|name>",
		Short: "Evaluate an experiment now",
		Long: `Fetch the GA4 reports for every variant, judge them and store the verdict.

Requires GA4_CREDENTIALS_FILE. When AI_API_KEY is set a written evaluation
is generated too.

Example:
  ga4-goat run hero --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}

				exp, err := findExperiment(ctx, s, args[0])
				if err != nil {
					return err
				}

				if !yes {
					ok, err := confirm(fmt.Sprintf("Evaluate '%s' against property %s now", exp.Name, exp.PropertyID))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}

				r, err := newRunner(ctx, s)
				if err != nil {
					return err
				}

				res, err := r.Execute(ctx, exp.ID, store.TriggerManual)
				if err != nil {
					return fmt.Errorf("evaluation failed: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), summarizeVerdict(res.Verdict))
				fmt.Fprintln(cmd.OutOrStdout())
				printResult(cmd.OutOrStdout(), exp, res)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
