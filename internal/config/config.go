// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mmynk/vereinsledger/internal/matcher"
	"github.com/mmynk/vereinsledger/internal/models"
)

// Config is the process configuration.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret verifies the bearer tokens issued by the member portal.
	JWTSecret string

	DefaultCurrency      string
	MemberPaymentAccount string
	FuzzyThreshold       float64

	// ShutdownTimeout bounds how long in-flight requests may finish.
	ShutdownTimeout time.Duration
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the configuration. Unset variables take their defaults; values
// that are set but invalid are an error.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:               getEnv("DB_PATH", "./data/verein.db"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		MemberPaymentAccount: getEnv("MEMBER_PAYMENT_ACCOUNT", "4000"),
	}

	var errs []error

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a TCP port, got %q", os.Getenv("PORT")))
	}
	cfg.Port = port

	cfg.DefaultCurrency, err = models.NormalizeCurrency(getEnv("DEFAULT_CURRENCY", models.DefaultCurrency))
	if err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_CURRENCY: %w", err))
	}

	threshold, err := strconv.ParseFloat(getEnv("MATCH_FUZZY_THRESHOLD", strconv.FormatFloat(matcher.DefaultFuzzyThreshold, 'f', -1, 64)), 64)
	if err != nil || threshold <= 0 || threshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_FUZZY_THRESHOLD must be in (0, 1], got %q", os.Getenv("MATCH_FUZZY_THRESHOLD")))
	}
	cfg.FuzzyThreshold = threshold

	cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err))
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
