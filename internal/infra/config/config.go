package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultRateChangeFieldID is the Clio custom-field id holding the date of
// rate change, used when CLIO_RATE_CHANGE_FIELD_ID is not set.
const DefaultRateChangeFieldID = "463462"

// AppConfig holds all configuration for the engine, resolved once at
// startup. Nothing re-reads the process environment after Load.
type AppConfig struct {
	TrackingDatabaseURL string // notification-tracking store
	PracticeDatabaseURL string // legacy practice store (matters)

	ClioBaseURL        string
	ClioFieldID        string // custom-field id for the rate-change date
	CredentialSelector string // operator initials selecting the credential triple

	ListenAddr  string
	LogLevel    string
	Environment string

	CronSpecPendingReminder string

	AlertTelegramToken  string // optional; escalation alerts disabled when empty
	AlertTelegramChatID int64
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.TrackingDatabaseURL = os.Getenv("TRACKING_DATABASE_URL")
	if cfg.TrackingDatabaseURL == "" {
		return nil, fmt.Errorf("TRACKING_DATABASE_URL is not set")
	}

	cfg.PracticeDatabaseURL = os.Getenv("PRACTICE_DATABASE_URL")
	if cfg.PracticeDatabaseURL == "" {
		return nil, fmt.Errorf("PRACTICE_DATABASE_URL is not set")
	}

	cfg.CredentialSelector = strings.TrimSpace(os.Getenv("CLIO_USER_INITIALS"))
	if cfg.CredentialSelector == "" {
		return nil, fmt.Errorf("CLIO_USER_INITIALS is not set")
	}

	cfg.ClioBaseURL = os.Getenv("CLIO_BASE_URL")
	if cfg.ClioBaseURL == "" {
		cfg.ClioBaseURL = "https://eu.app.clio.com"
	}

	cfg.ClioFieldID = os.Getenv("CLIO_RATE_CHANGE_FIELD_ID")
	if cfg.ClioFieldID == "" {
		cfg.ClioFieldID = DefaultRateChangeFieldID
	}
	if _, err := strconv.Atoi(cfg.ClioFieldID); err != nil {
		return nil, fmt.Errorf("invalid CLIO_RATE_CHANGE_FIELD_ID %q: %w", cfg.ClioFieldID, err)
	}

	cfg.ListenAddr = os.Getenv("HTTP_LISTEN_ADDR")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.CronSpecPendingReminder = os.Getenv("CRON_SPEC_PENDING_REMINDER")
	if cfg.CronSpecPendingReminder == "" {
		cfg.CronSpecPendingReminder = "0 9 * * MON-FRI" // weekday mornings
	}

	cfg.AlertTelegramToken = os.Getenv("ALERT_TELEGRAM_TOKEN")
	if chatIDStr := os.Getenv("ALERT_TELEGRAM_CHAT_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ALERT_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.AlertTelegramChatID = chatID
	}
	if cfg.AlertTelegramToken != "" && cfg.AlertTelegramChatID == 0 {
		return nil, fmt.Errorf("ALERT_TELEGRAM_CHAT_ID is required when ALERT_TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}
