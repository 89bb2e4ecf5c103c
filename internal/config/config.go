// Package config provides environment-aware configuration management for
// the training-run service: database, cache, compute-backend, and HTTP
// settings loaded from the process environment with sane local defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Environment names a deployment tier.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration. Struct-tagged fields are
// overlaid from the environment by envdecode after New's defaults.
type Config struct {
	Env Environment

	// HTTP
	HTTPPort    int      `env:"HTTP_PORT"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// Postgres (empty DSN falls back to the in-memory store)
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Redis (empty URL falls back to direct storage writes in ingestion)
	RedisURL string `env:"REDIS_URL"`

	// Compute backend
	ComputeBackendURL string `env:"COMPUTE_BACKEND_URL"`

	// Blob storage root for models/rollouts when not using object storage
	BlobStoreDir string `env:"BLOBSTORE_DIR"`

	// Cache capacities
	CompiledEnvCacheSize int `env:"COMPILED_ENV_CACHE_SIZE"`
	AssetCacheSize       int `env:"ASSET_CACHE_SIZE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	// Security / limits
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"`

	// Features
	MetricsEnabled bool `env:"METRICS_ENABLED"`
	MetricsPort    int  `env:"METRICS_PORT"`
	TestMode       bool `env:"TEST_MODE"`
}

// New returns a Config populated with local-development defaults.
func New() *Config {
	return &Config{
		Env:                  Development,
		HTTPPort:             8080,
		CORSOrigins:          []string{"*"},
		ComputeBackendURL:    "http://localhost:9000",
		BlobStoreDir:         "data/blobs",
		CompiledEnvCacheSize: 500,
		AssetCacheSize:       2000,
		LogLevel:             "info",
		LogFormat:            "json",
		RateLimitEnabled:     true,
		RateLimitRequests:    100,
		RateLimitWindow:      time.Minute,
		MetricsEnabled:       true,
		MetricsPort:          9090,
	}
}

// Load loads configuration based on the RLSTUDIO_ENV environment variable:
// defaults from New, an optional config/<env>.env file via godotenv, then
// environment-variable overrides decoded through struct tags.
func Load() (*Config, error) {
	envStr := os.Getenv("RLSTUDIO_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env, ok := parseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid RLSTUDIO_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := New()
	cfg.Env = env
	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged field is present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}
	cfg.normalize()
	return cfg, nil
}

func parseEnvironment(s string) (Environment, bool) {
	switch Environment(strings.ToLower(s)) {
	case Development:
		return Development, true
	case Testing:
		return Testing, true
	case Production:
		return Production, true
	default:
		return "", false
	}
}

// normalize splits comma-joined CORS origin entries (envdecode splits on
// semicolons only) and trims whitespace.
func (c *Config) normalize() {
	var origins []string
	for _, entry := range c.CORSOrigins {
		for _, part := range strings.Split(entry, ",") {
			if p := strings.TrimSpace(part); p != "" {
				origins = append(origins, p)
			}
		}
	}
	c.CORSOrigins = origins
}

// IsDevelopment reports whether Env is Development.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting reports whether Env is Testing.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction reports whether Env is Production.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate checks cross-field invariants, stricter in production.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if !c.RateLimitEnabled {
			return fmt.Errorf("RATE_LIMIT_ENABLED must be true in production")
		}
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required in production")
		}
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	return nil
}
