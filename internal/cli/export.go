package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportWhat   string
)

var exportCmd = &cobra.Command{
	Use:   "export <id|name>",
	Short: "Export stored results or execution history",
	Long: `Export stored verdicts or the execution history in CSV or JSON format.

Examples:
  ga4-goat export hero --format csv > hero-results.csv
  ga4-goat export hero --what executions --format json > hero-runs.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVarP(&exportWhat, "what", "w", "results", "data to export (results or executions)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}
	if exportWhat != "results" && exportWhat != "executions" {
		return fmt.Errorf("invalid --what: must be 'results' or 'executions'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		exp, err := findExperiment(ctx, s, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportWhat == "executions" {
			execs, err := s.ListExecutions(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get executions: %w", err)
			}
			if exportFormat == "csv" {
				return exportExecutionsCSV(out, execs)
			}
			return exportJSON(out, map[string]any{"executions": toJSONExecutions(execs)})
		}

		results, err := s.ListResults(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}
		if exportFormat == "csv" {
			return exportResultsCSV(out, results)
		}
		return exportJSON(out, map[string]any{"results": toJSONResults(results)})
	})
}

// exportResultsCSV writes one row per variant per result.
func exportResultsCSV(out io.Writer, results []*store.Result) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "execution_id", "variant", "pv", "cv", "cvr", "winner", "significance", "required", "all_passed"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range results {
		for _, v := range r.Variants {
			row := []string{
				strconv.FormatInt(r.CreatedAt.Unix(), 10),
				r.ExecutionID,
				v.Label.String(),
				strconv.FormatInt(v.PV, 10),
				strconv.FormatInt(v.CV, 10),
				strconv.FormatFloat(v.CVR(), 'f', 6, 64),
				r.Verdict.Winner.String(),
				strconv.Itoa(r.Verdict.Significance.Value),
				strconv.Itoa(r.Verdict.Significance.Required),
				strconv.FormatBool(r.Verdict.AllPassed),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	return w.Error()
}

func exportExecutionsCSV(out io.Writer, execs []*store.Execution) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write([]string{"id", "status", "trigger", "created_at", "completed_at", "error"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range execs {
		completed := ""
		if e.CompletedAt != nil {
			completed = strconv.FormatInt(e.CompletedAt.Unix(), 10)
		}
		row := []string{
			e.ID,
			string(e.Status),
			string(e.Trigger),
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
			completed,
			e.Error,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return w.Error()
}

type jsonResult struct {
	Timestamp    int64   `json:"timestamp"`
	ExecutionID  string  `json:"execution_id"`
	Verdict      any     `json:"verdict"`
	Variants     any     `json:"variants"`
	AIEvaluation *string `json:"ai_evaluation"`
}

type jsonExecution struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Trigger     string `json:"trigger"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt *int64 `json:"completed_at"`
	Error       string `json:"error,omitempty"`
}

func toJSONResults(results []*store.Result) []jsonResult {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			Timestamp:    r.CreatedAt.Unix(),
			ExecutionID:  r.ExecutionID,
			Verdict:      r.Verdict,
			Variants:     r.Variants,
			AIEvaluation: r.AIEvaluation,
		}
	}
	return out
}

func toJSONExecutions(execs []*store.Execution) []jsonExecution {
	out := make([]jsonExecution, len(execs))
	for i, e := range execs {
		out[i] = jsonExecution{
			ID:        e.ID,
			Status:    string(e.Status),
			Trigger:   string(e.Trigger),
			CreatedAt: e.CreatedAt.Unix(),
			Error:     e.Error,
		}
		if e.CompletedAt != nil {
			ts := e.CompletedAt.Unix()
			out[i].CompletedAt = &ts
		}
	}
	return out
}

func exportJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
