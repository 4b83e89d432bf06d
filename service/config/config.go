package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel string

	// Sui source configuration
	SuiRPCURL       string
	PollInterval    time.Duration
	MaxTransactions int
	EmitMode        source.EmitMode
	ResetOnClose    bool

	// Metrics endpoint; empty disables it
	MetricsAddr string

	// NATS sink; empty URL disables it
	NATSURL           string
	NATSSubjectPrefix string

	// Postgres sink; empty URL disables it
	DatabaseURL string

	// Redis stream sink; empty URL disables it
	RedisURL    string
	RedisStream string
	RedisMaxLen int64
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it looks for ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Sui source configuration
	cfg.SuiRPCURL = getEnvOrDefault("SUI_RPC_URL", source.MainnetEndpoint)

	intervalMs, err := parseInt("POLL_INTERVAL_MS", 1000)
	if err != nil {
		errs = append(errs, err)
	} else if intervalMs <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", intervalMs))
	} else {
		cfg.PollInterval = time.Duration(intervalMs) * time.Millisecond
	}

	maxTxns, err := parseInt("MAX_TRANSACTIONS", 5)
	if err != nil {
		errs = append(errs, err)
	} else if maxTxns <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TRANSACTIONS must be positive, got %d", maxTxns))
	} else {
		cfg.MaxTransactions = maxTxns
	}

	mode, err := source.ParseEmitMode(os.Getenv("EMIT_MODE"))
	if err != nil {
		errs = append(errs, fmt.Errorf("EMIT_MODE: %w", err))
	} else {
		cfg.EmitMode = mode
	}

	reset, err := parseBool("RESET_ON_CLOSE", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ResetOnClose = reset
	}

	// Metrics configuration; an explicit empty value disables the endpoint
	if addr, ok := os.LookupEnv("METRICS_ADDR"); ok {
		cfg.MetricsAddr = addr
	} else {
		cfg.MetricsAddr = ":9091"
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getEnvOrDefault("NATS_SUBJECT_PREFIX", "sui.txns")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Redis configuration
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RedisStream = getEnvOrDefault("REDIS_STREAM", "sui:events")
	maxLen, err := parseInt("REDIS_MAXLEN", 10000)
	if err != nil {
		errs = append(errs, err)
	} else if maxLen < 0 {
		errs = append(errs, fmt.Errorf("REDIS_MAXLEN cannot be negative, got %d", maxLen))
	} else {
		cfg.RedisMaxLen = int64(maxLen)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SuiRPCURL == "" {
		errs = append(errs, fmt.Errorf("SuiRPCURL is required"))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("PollInterval must be positive"))
	}

	if c.MaxTransactions <= 0 {
		errs = append(errs, fmt.Errorf("MaxTransactions must be positive"))
	}

	if _, err := source.ParseEmitMode(string(c.EmitMode)); err != nil {
		errs = append(errs, err)
	}

	if c.NATSURL != "" && c.NATSSubjectPrefix == "" {
		errs = append(errs, fmt.Errorf("NATSSubjectPrefix is required when NATSURL is set"))
	}

	if c.RedisURL != "" && c.RedisStream == "" {
		errs = append(errs, fmt.Errorf("RedisStream is required when RedisURL is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
