package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/ga4"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/narrative"
	"github.com/gkobilansky/ga4-goat/internal/runner"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog/log"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// findExperiment resolves a numeric ID or a name.
func findExperiment(ctx context.Context, s store.Store, ref string) (*store.Experiment, error) {
	var (
		exp *store.Experiment
		err error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		exp, err = s.GetExperiment(ctx, id)
	} else {
		exp, err = s.GetExperimentByName(ctx, ref)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("experiment '%s' not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

// newRunner wires the GA4 client and, when an API key is configured, the
// narrative client.
func newRunner(ctx context.Context, s store.Store) (*runner.Runner, error) {
	source, err := ga4.NewClient(ctx, appConfig.GA4CredentialsFile)
	if err != nil {
		return nil, err
	}

	var narrator narrative.Narrator
	if appConfig.AI.APIKey != "" {
		client, err := narrative.NewOpenAIClient(appConfig.AI.APIKey, appConfig.AI.BaseURL, appConfig.AI.Model)
		if err != nil {
			return nil, err
		}
		narrator = client
	} else {
		log.Debug().Msg("AI_API_KEY not set, narratives disabled")
	}

	return runner.New(s, source, narrator), nil
}

// confirm asks a yes/no question. Interrupts count as "no".
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%s,%03d", formatNumber(n/1000), n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

// formatTime renders t in UTC+9, or "-" for nil.
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return jst.In(*t).Format("2006-01-02 15:04")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return jst.FormatDate(*t)
}
