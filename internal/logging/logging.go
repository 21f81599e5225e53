// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is the name of the rotating log file inside the log directory.
const LogFile = "ga4-goat.log"

// Init points the global logger at stderr and, when dir is writable, a
// rotating file under dir. verbose enables debug level.
func Init(verbose bool, dir string) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	writers := []io.Writer{console}
	if fw, err := fileWriter(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	} else if fw != nil {
		writers = append(writers, fw)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
}

func fileWriter(dir string) (io.Writer, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return nil, fmt.Errorf("log directory %q is not writable: %w", dir, err)
	}
	_ = os.Remove(probe)

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFile),
		MaxSize:    16, // megabytes
		MaxBackups: 8,
		MaxAge:     90, // days
		Compress:   true,
	}, nil
}
