package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Config holds the server settings, read from the environment and an
// optional .env file.
type Config struct {
	Port                 int
	DatabasePath         string
	LogLevel             string
	OverdueSweepInterval time.Duration

	// Loan terms applied on approval when the lender leaves them blank.
	DefaultInterestRate decimal.Decimal
	DefaultPenaltyRate  decimal.Decimal
	DefaultTermMonths   int
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnvInt("PORT", 8080),
		DatabasePath:         getEnvString("DATABASE_PATH", "ehdiloan.db"),
		LogLevel:             getEnvString("LOG_LEVEL", "info"),
		OverdueSweepInterval: getEnvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour),
		DefaultInterestRate:  getEnvDecimal("DEFAULT_INTEREST_RATE", decimal.NewFromInt(10)),
		DefaultPenaltyRate:   getEnvDecimal("DEFAULT_PENALTY_RATE", decimal.NewFromInt(5)),
		DefaultTermMonths:    getEnvInt("DEFAULT_TERM_MONTHS", 1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.OverdueSweepInterval <= 0 {
		return fmt.Errorf("OVERDUE_SWEEP_INTERVAL must be positive")
	}
	if !c.DefaultInterestRate.IsPositive() {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must be positive")
	}
	if c.DefaultPenaltyRate.IsNegative() {
		return fmt.Errorf("DEFAULT_PENALTY_RATE must not be negative")
	}
	if c.DefaultTermMonths <= 0 {
		return fmt.Errorf("DEFAULT_TERM_MONTHS must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warnf("ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warnf("ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
		log.Warnf("ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}
