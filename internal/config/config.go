// Package config loads runtime settings from .env files and the environment,
// and experiment definitions from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AIConfig selects the narrative model. An empty APIKey disables narratives.
type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DBPath             string
	Port               int
	PollInterval       time.Duration
	APIToken           string
	GA4CredentialsFile string
	AI                 AIConfig
	LogDir             string
}

// Load loads the configuration from .env files and environment variables.
// Variables already set in the environment win over .env entries.
func Load() (*AppConfig, error) {
	if exePath, err := os.Executable(); err == nil {
		envPath := filepath.Join(filepath.Dir(exePath), ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables")
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	port, err := strconv.Atoi(getEnv("GOAT_PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid GOAT_PORT %q", os.Getenv("GOAT_PORT"))
	}

	interval, err := time.ParseDuration(getEnv("GOAT_POLL_INTERVAL", "1m"))
	if err != nil || interval <= 0 {
		return nil, fmt.Errorf("invalid GOAT_POLL_INTERVAL %q", os.Getenv("GOAT_POLL_INTERVAL"))
	}

	return &AppConfig{
		DBPath:             getEnv("GOAT_DB_PATH", "./goat.db"),
		Port:               port,
		PollInterval:       interval,
		APIToken:           getEnv("GOAT_API_TOKEN", ""),
		GA4CredentialsFile: getEnv("GA4_CREDENTIALS_FILE", ""),
		AI: AIConfig{
			APIKey:  getEnv("AI_API_KEY", ""),
			BaseURL: getEnv("AI_BASE_URL", ""),
			Model:   getEnv("AI_MODEL", "gpt-4o-mini"),
		},
		LogDir: getEnv("LOGS_FOLDER", "logs"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
