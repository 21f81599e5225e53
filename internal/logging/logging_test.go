package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gkobilansky/ga4-goat/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInit_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logging.Init(true, dir)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", zerolog.GlobalLevel())
	}

	log.Info().Str("experiment", "hero").Msg("hello from test")

	data, err := os.ReadFile(filepath.Join(dir, logging.LogFile))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestInit_NoDirectory(t *testing.T) {
	logging.Init(false, "")

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}
}
