package cli

import (
	"context"
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete an experiment and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				exp, err := findExperiment(ctx, s, args[0])
				if err != nil {
					return err
				}

				if !yes {
					ok, err := confirm(fmt.Sprintf("Delete '%s' with all results and executions", exp.Name))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
						return nil
					}
				}

				if err := s.DeleteExperiment(ctx, exp.ID); err != nil {
					return fmt.Errorf("failed to delete experiment: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment '%s'.\n", exp.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
