// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir              string // Base directory for the database files (always absolute)
	Port                 int
	LogLevel             string
	DevMode              bool
	FastSampleInterval   time.Duration // Broadcast-only valuation cadence
	DurableSampleInterval time.Duration // Persisted valuation cadence
	HistoryRetention     time.Duration // Rolling window for valuation samples
	PriceTimeout         time.Duration // Per-call PriceOracle timeout
	PriceBaseURL         string        // Override for the quote endpoint (tests)
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("STOCKY_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("STOCKY_PORT", 8080),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		FastSampleInterval:    time.Duration(getEnvAsInt("FAST_SAMPLE_SECONDS", 10)) * time.Second,
		DurableSampleInterval: time.Duration(getEnvAsInt("DURABLE_SAMPLE_SECONDS", 60)) * time.Second,
		HistoryRetention:      time.Duration(getEnvAsInt("HISTORY_RETENTION_DAYS", 7)) * 24 * time.Hour,
		PriceTimeout:          time.Duration(getEnvAsInt("PRICE_TIMEOUT_SECONDS", 5)) * time.Second,
		PriceBaseURL:          getEnv("YAHOO_BASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.FastSampleInterval <= 0 {
		return fmt.Errorf("FAST_SAMPLE_SECONDS must be positive")
	}
	if c.DurableSampleInterval <= 0 {
		return fmt.Errorf("DURABLE_SAMPLE_SECONDS must be positive")
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be positive")
	}
	return nil
}

// LedgerDBPath returns the path of the trade ledger database.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// HistoryDBPath returns the path of the valuation history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
