package cli

import (
	"context"
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		newStateCmd("pause", store.StatePaused, "Pause an experiment", "Scheduled evaluations stop until the experiment is resumed."),
		newStateCmd("resume", store.StateRunning, "Resume a paused experiment", "Scheduled evaluations start again on the next due slot."),
		newStateCmd("complete", store.StateCompleted, "Mark an experiment as completed", "Completed experiments are never evaluated automatically."),
	)
}

func newStateCmd(use string, state store.TestState, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Long: short + ".\n\n" + long + `

Example:
  ga4-goat ` + use + ` hero`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				exp, err := findExperiment(ctx, s, args[0])
				if err != nil {
					return err
				}

				if err := checkTransition(exp.State, state); err != nil {
					return err
				}

				if err := s.UpdateExperimentState(ctx, exp.ID, state); err != nil {
					return fmt.Errorf("failed to update experiment: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is now %s.\n", exp.Name, state)
				return nil
			})
		},
	}
}

// checkTransition allows running <-> paused and anything -> completed.
func checkTransition(from, to store.TestState) error {
	switch {
	case from == to:
		return fmt.Errorf("experiment is already %s", from)
	case from == store.StateCompleted:
		return fmt.Errorf("experiment is completed and cannot be changed")
	}
	return nil
}
