// Package config loads service configuration from the environment.
//
// Values are read from a local .env file when present (development), then
// from process environment variables, which always take precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Identity backend kinds accepted by IDENTITY_BACKEND.
const (
	IdentityBackendAppwrite = "appwrite"
	IdentityBackendLocal    = "local"
)

// Config is the root configuration for the travel portal service.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Session   SessionConfig
}

// ServiceConfig describes the HTTP service itself.
type ServiceConfig struct {
	Name                string `env:"SERVICE_NAME" envDefault:"travel-portal"`
	Version             string `env:"SERVICE_VERSION" envDefault:"dev"`
	Env                 string `env:"ENV" envDefault:"development"`
	Port                string `env:"PORT" envDefault:"8080"`
	ShutdownTimeout     string `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadinessDrainDelay string `env:"READINESS_DRAIN_DELAY" envDefault:"5s"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type TracingConfig struct {
	Enabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint   string  `env:"OTEL_COLLECTOR_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"0.1"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"PROFILING_ENABLED" envDefault:"false"`
	Endpoint string `env:"PYROSCOPE_ENDPOINT" envDefault:"http://localhost:4040"`
}

// DatabaseConfig holds the Postgres connection settings used by pgxpool.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

// RedisConfig holds the Redis settings for the session cache record and
// the content query cache.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"travel-portal:"`
}

// IdentityConfig selects and configures the identity backend.
type IdentityConfig struct {
	Backend   string `env:"IDENTITY_BACKEND" envDefault:"appwrite"`
	Endpoint  string `env:"APPWRITE_ENDPOINT" envDefault:"https://cloud.appwrite.io/v1"`
	ProjectID string `env:"APPWRITE_PROJECT_ID"`
	Timeout   string `env:"IDENTITY_TIMEOUT" envDefault:"30s"`
}

// SessionConfig configures the dashboard session manager.
type SessionConfig struct {
	// AccountUserID is the pre-provisioned account identity exposed as userId.
	AccountUserID   string `env:"ACCOUNT_USER_ID"`
	ContentCacheTTL string `env:"CONTENT_CACHE_TTL" envDefault:"5m"`
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Identity.Backend = strings.ToLower(strings.TrimSpace(cfg.Identity.Backend))
	return &cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}

	switch c.Identity.Backend {
	case IdentityBackendAppwrite:
		if c.Identity.ProjectID == "" {
			errs = append(errs, errors.New("APPWRITE_PROJECT_ID is required for the appwrite identity backend"))
		}
		if _, err := url.ParseRequestURI(c.Identity.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("APPWRITE_ENDPOINT is invalid: %w", err))
		}
	case IdentityBackendLocal:
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_BACKEND must be %q or %q, got %q",
			IdentityBackendAppwrite, IdentityBackendLocal, c.Identity.Backend))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.Tracing.SampleRate))
	}

	for name, value := range map[string]string{
		"SHUTDOWN_TIMEOUT":      c.Service.ShutdownTimeout,
		"READINESS_DRAIN_DELAY": c.Service.ReadinessDrainDelay,
		"IDENTITY_TIMEOUT":      c.Identity.Timeout,
		"CONTENT_CACHE_TTL":     c.Session.ContentCacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid duration: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(c.Service.ShutdownTimeout, 10*time.Second)
}

// GetReadinessDrainDelayDuration returns how long /ready reports 503
// before the HTTP server stops accepting connections.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDurationOr(c.Service.ReadinessDrainDelay, 5*time.Second)
}

// GetIdentityTimeoutDuration returns the HTTP timeout for identity backend calls.
func (c *Config) GetIdentityTimeoutDuration() time.Duration {
	return parseDurationOr(c.Identity.Timeout, 30*time.Second)
}

// GetContentCacheTTLDuration returns how long content list queries stay cached.
func (c *Config) GetContentCacheTTLDuration() time.Duration {
	return parseDurationOr(c.Session.ContentCacheTTL, 5*time.Minute)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
