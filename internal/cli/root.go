package cli

import (
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/config"
	"github.com/gkobilansky/ga4-goat/internal/logging"
	"github.com/spf13/cobra"
)

var (
	dbPath    string
	verbose   bool
	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "ga4-goat",
	Short: "GA4 Goat - scheduled A/B test evaluation on Google Analytics 4 data",
	Long: `🐐 GA4 Goat evaluates A/B tests against Google Analytics 4 reports.
Single Go binary, embedded SQLite, schedule-driven.

Running without a subcommand starts the server (same as 'ga4-goat serve').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appConfig = cfg

		logging.Init(verbose, cfg.LogDir)

		if !cmd.Flags().Changed("db") {
			dbPath = cfg.DBPath
		}
		return nil
	},
	RunE: runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./goat.db", "database path (default from GOAT_DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "enable debug logging")
}
