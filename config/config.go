/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One struct, populated by kelseyhightower/envconfig, carrying everything
  the server needs: HTTP port, database path, log level, the statutory
  minimum entitlement, and the ledger's tuning knobs. A .env file is
  loaded first (godotenv) so local development does not require exported
  variables.

STATUTORY MINIMUM:
  The fallback entitlement applied when no accrual rule matches is
  deployment configuration, not code. Different jurisdictions set
  different floors.
*/
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config is the full server configuration.
type Config struct {
	Port         int    `envconfig:"PORT" default:"8080"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"leave.db"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Statutory fallback entitlement when no accrual rule matches.
	StatutoryAnnualDays float64 `envconfig:"STATUTORY_ANNUAL_DAYS" default:"14"`
	StatutorySickDays   float64 `envconfig:"STATUTORY_SICK_DAYS" default:"10"`

	// Carry-over cap for statutory snapshots and rules without their own cap.
	DefaultCarryOverCap float64 `envconfig:"DEFAULT_CARRY_OVER_CAP" default:"10"`

	// Engine and year-end tuning.
	TxMaxRetries       int `envconfig:"TX_MAX_RETRIES" default:"5"`
	YearEndConcurrency int `envconfig:"YEAR_END_CONCURRENCY" default:"8"`
	BatchChunkSize     int `envconfig:"BATCH_CHUNK_SIZE" default:"450"`
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}

// StatutoryAnnual returns the statutory annual entitlement as a decimal.
func (c *Config) StatutoryAnnual() decimal.Decimal {
	return decimal.NewFromFloat(c.StatutoryAnnualDays)
}

// StatutorySick returns the statutory sick entitlement as a decimal.
func (c *Config) StatutorySick() decimal.Decimal {
	return decimal.NewFromFloat(c.StatutorySickDays)
}

// ParseLogLevel resolves the configured level, defaulting to info on junk.
func (c *Config) ParseLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
