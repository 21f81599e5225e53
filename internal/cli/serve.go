package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/dispatch"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/server"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	port         int
	pollInterval time.Duration
	noPoller     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the schedule poller",
	Long: `Start the ga4-goat HTTP server.

The server provides:
  - JSON API for experiments, verdicts and the schedule (token protected)
  - Prometheus metrics at /metrics
  - Health check endpoint
  - A poller that evaluates due experiments every interval

Example:
  ga4-goat serve --port 8080 --interval 1m`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from GOAT_PORT)")
	serveCmd.Flags().DurationVar(&pollInterval, "interval", 0, "schedule polling interval (default from GOAT_POLL_INTERVAL)")
	serveCmd.Flags().BoolVar(&noPoller, "no-poller", false, "serve the API without running scheduled evaluations")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if port == 0 {
		port = appConfig.Port
	}
	if pollInterval == 0 {
		pollInterval = appConfig.PollInterval
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		token, err := resolveToken(ctx, s, appConfig.APIToken)
		if err != nil {
			return err
		}

		clock := jst.SystemClock{}
		dispatcher := &dispatch.Dispatcher{Experiments: s, History: s, Clock: clock, CatchUp: max(dispatch.DefaultCatchUp, 2*pollInterval)}
		deps := server.Deps{Due: dispatcher, Clock: clock}

		r, err := newRunner(ctx, s)
		if err != nil {
			log.Warn().Err(err).Msg("Evaluation disabled; API is read-only")
		} else {
			deps.Executor = r
		}

		srv := server.New(s, deps, port, token)

		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "ga4-goat running on http://localhost:%d\n", port)
		fmt.Fprintf(cmd.OutOrStdout(), "API token: %s\n", srv.Token())
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(gctx) })

		if r != nil && !noPoller {
			poller := &dispatch.Poller{Finder: dispatcher, Executor: r, Interval: pollInterval}
			g.Go(func() error {
				if err := poller.Run(gctx); err != nil && gctx.Err() == nil {
					return err
				}
				return nil
			})
		}

		return g.Wait()
	})
}
