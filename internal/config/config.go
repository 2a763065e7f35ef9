package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	DatabaseURL string
	RedisAddr   string
	LogLevel    string
	Port        string

	// Identity of the device this agent runs for. IdentityKey may be empty,
	// in which case a key is generated at startup and persisted with the
	// identity record.
	IdentityKey string
	DisplayName string
	PhoneNumber string

	// Local directory snapshot persisted for offline reads.
	SnapshotPath string

	// Outbound SMS gateway.
	SMSGatewayURL   string
	SMSGatewayToken string

	// Optional Telegram notification sink.
	TelegramToken  string
	TelegramChatID int64

	// How often the curfew scheduler polls for due jobs.
	CurfewPollInterval time.Duration
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		Port:               getEnvOrDefault("PORT", "8080"),
		IdentityKey:        os.Getenv("IDENTITY_KEY"),
		DisplayName:        getEnvOrDefault("DISPLAY_NAME", "Member"),
		PhoneNumber:        os.Getenv("PHONE_NUMBER"),
		SnapshotPath:       getEnvOrDefault("SNAPSHOT_PATH", "directory_snapshot.json"),
		SMSGatewayURL:      os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayToken:    os.Getenv("SMS_GATEWAY_TOKEN"),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		CurfewPollInterval: 30 * time.Second,
	}

	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if _, err := fmt.Sscan(raw, &cfg.TelegramChatID); err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be an integer: %w", err)
		}
	}

	if raw := os.Getenv("CURFEW_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("CURFEW_POLL_INTERVAL must be a duration: %w", err)
		}
		cfg.CurfewPollInterval = d
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
