// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles; a .env file, when present, only fills in unset variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/prolearn/prolearn/internal/idalloc"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Identifier allocation
	IDAllocMaxAttempts  int `env:"ID_ALLOC_MAX_ATTEMPTS" envDefault:"50"`
	IDAllocAdvanceEvery int `env:"ID_ALLOC_ADVANCE_EVERY" envDefault:"5"`

	// Audit stream worker
	AuditWorkerEnabled   bool `env:"AUDIT_WORKER_ENABLED" envDefault:"true"`
	AuditWorkerBatchSize int  `env:"AUDIT_WORKER_BATCH_SIZE" envDefault:"200"`

	// Argon2id PHC hash of the admin bearer token. Empty disables admin routes.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	// Registration rate limiting (per IP)
	RateLimitRegisterEnabled bool    `env:"RATE_LIMIT_REGISTER_ENABLED" envDefault:"true"`
	RateLimitRegisterRPS     float64 `env:"RATE_LIMIT_REGISTER_RPS" envDefault:"0.2"`
	RateLimitRegisterBurst   int     `env:"RATE_LIMIT_REGISTER_BURST" envDefault:"5"`

	// Comma-separated allowed origins, e.g. "https://app.example.com,*.example.org"
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllocPolicy returns the identifier allocation retry policy.
func (c *Config) AllocPolicy() idalloc.Policy {
	return idalloc.Policy{
		MaxAttempts:  c.IDAllocMaxAttempts,
		AdvanceEvery: c.IDAllocAdvanceEvery,
	}
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.AppPort < 1 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT out of range: %d", c.AppPort))
	}
	if c.IDAllocMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ID_ALLOC_MAX_ATTEMPTS must be positive: %d", c.IDAllocMaxAttempts))
	}
	if c.IDAllocAdvanceEvery < 1 {
		errs = append(errs, fmt.Errorf("ID_ALLOC_ADVANCE_EVERY must be positive: %d", c.IDAllocAdvanceEvery))
	}
	if c.RateLimitRegisterEnabled && (c.RateLimitRegisterRPS <= 0 || c.RateLimitRegisterBurst < 1) {
		errs = append(errs, errors.New("RATE_LIMIT_REGISTER_RPS and RATE_LIMIT_REGISTER_BURST must be positive"))
	}
	if c.AuditWorkerBatchSize < 1 {
		errs = append(errs, fmt.Errorf("AUDIT_WORKER_BATCH_SIZE must be positive: %d", c.AuditWorkerBatchSize))
	}
	if c.MaxRequestBodySize < 1 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive: %d", c.MaxRequestBodySize))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text: %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// DotEnvFile is the optional development env file.
const DotEnvFile = ".env"

// Load reads DotEnvFile if it exists, parses environment variables and
// validates the result.
func Load() (*Config, error) {
	return LoadFrom(DotEnvFile)
}

// LoadFrom is Load with an explicit env file path. Variables already set
// in the environment win over the file.
func LoadFrom(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotEnvPath, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
