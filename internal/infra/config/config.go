package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken       string
	DatabaseURL         string
	AdminTelegramID     int64
	OpsChatID           int64 // chat receiving release and treasury notifications
	TreasuryAccount     string
	LogLevel            string
	Environment         string
	CronSpecTreasuryRpt string // daily treasury snapshot
	DBMaxOpenConns      int
	DBMaxIdleConns      int
}

const defaultDBPoolSize = 25

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	opsChatStr := os.Getenv("OPS_CHAT_ID")
	if opsChatStr == "" {
		// Release notifications go to the admin unless a dedicated ops
		// chat is configured.
		cfg.OpsChatID = cfg.AdminTelegramID
	} else {
		cfg.OpsChatID, err = strconv.ParseInt(opsChatStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OPS_CHAT_ID: %w", err)
		}
	}

	cfg.TreasuryAccount = os.Getenv("TREASURY_ACCOUNT")
	if cfg.TreasuryAccount == "" {
		return nil, fmt.Errorf("TREASURY_ACCOUNT is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecTreasuryRpt = os.Getenv("CRON_SPEC_TREASURY_REPORT")
	if cfg.CronSpecTreasuryRpt == "" {
		cfg.CronSpecTreasuryRpt = "0 9 * * *" // Default: 9 AM daily
	}

	if cfg.DBMaxOpenConns, err = poolSize("DB_MAX_OPEN_CONNS"); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = poolSize("DB_MAX_IDLE_CONNS"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func poolSize(name string) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return defaultDBPoolSize, nil
	}
	size, err := strconv.Atoi(value)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return size, nil
}
