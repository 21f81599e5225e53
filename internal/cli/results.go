package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/gkobilansky/ga4-goat/internal/stats"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id|name>",
	Short: "Show the latest verdict for an experiment",
	Long:  `Show the latest stored verdict including conversion rates, confidence intervals and each check.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		res, err := s.LatestResult(ctx, exp.ID)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No results for '%s' yet. Run: ga4-goat run %d\n", exp.Name, exp.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get result: %w", err)
		}

		printResult(cmd.OutOrStdout(), exp, res)
		return nil
	})
}

func printResult(out io.Writer, exp *store.Experiment, res *store.Result) {
	v := res.Verdict

	fmt.Fprintf(out, "EXPERIMENT: %s (#%d)\n", exp.Name, exp.ID)
	fmt.Fprintf(out, "STATE: %s\n", exp.State)
	fmt.Fprintf(out, "EVALUATED: %s\n", formatTime(&res.CreatedAt))
	fmt.Fprintln(out)

	confidence := stats.ConfidenceFor(v.Significance.Required)
	fmt.Fprintf(out, "VARIANT  PV         CV         CVR      %.0f%% CI\n", confidence*100)
	fmt.Fprintln(out, strings.Repeat("─", 60))

	for _, x := range res.Variants {
		indicator := ""
		switch x.Label {
		case v.Winner:
			indicator = " ← LEADING"
		case v.Baseline:
			indicator = " (baseline)"
		}

		ciStr := "N/A"
		if x.PV > 0 {
			lower, upper := stats.WilsonInterval(x.CV, x.PV, confidence)
			ciStr = fmt.Sprintf("[%.1f%%, %.1f%%]", lower*100, upper*100)
		}

		fmt.Fprintf(out, "%-7s  %-9s  %-9s  %-7s  %s%s\n",
			x.Label,
			formatNumber(x.PV),
			formatNumber(x.CV),
			formatPercent(x.CVR()),
			ciStr,
			indicator,
		)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s 有意差      %d%% (必要 %d%%: 期間 %d / CV %d / PV %d, z=%.3f)\n",
		checkMark(v.Significance.Passed), v.Significance.Value, v.Significance.Required,
		v.Significance.PeriodBased, v.Significance.CVBased, v.Significance.PVBased, v.Significance.ZScore)
	fmt.Fprintf(out, "%s サンプル    %s / %s PV (最低 %s)\n",
		checkMark(v.SampleSize.Passed), formatNumber(v.SampleSize.WinnerPV), formatNumber(v.SampleSize.RunnerUpPV), formatNumber(v.SampleSize.MinPV))
	fmt.Fprintf(out, "%s 期間        %d日 (最低 %d日) %s %s %s\n",
		checkMark(v.Period.Passed), v.Period.Days, v.Period.MinDays, v.Period.Icon, v.Period.Reliability, v.Period.Note)
	fmt.Fprintf(out, "%s 改善        %.1f%% / %+.2fpt (基準 %.1f%% または %.2fpt)\n",
		checkMark(v.Improvement.Passed), v.Improvement.Rate, v.Improvement.DifferencePt, v.Improvement.MinRate, v.Improvement.MinDifferencePt)
	fmt.Fprintln(out)

	fmt.Fprintln(out, v.Recommendation)

	if res.AIEvaluation != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "AI EVALUATION:")
		fmt.Fprintln(out, *res.AIEvaluation)
	}
}

func checkMark(passed bool) string {
	if passed {
		return "✓"
	}
	return "✗"
}

// summarizeVerdict is the one-line form used after `run`.
func summarizeVerdict(v judge.Verdict) string {
	status := "NOT YET"
	if v.AllPassed {
		status = "PASSED"
	}
	return fmt.Sprintf("%s: winner %s vs %s (significance %d%%/%d%%)", status, v.Winner, v.RunnerUp, v.Significance.Value, v.Significance.Required)
}
