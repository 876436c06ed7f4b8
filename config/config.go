/*
Package config loads application configuration from the environment.

PURPOSE:
  Everything tunable lives here, including the two ledger timing
  constants that earlier incarnations of this program kept as literals
  edited in source: the release delay and the validity window.
*/
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `env:",prefix=SERVER_"`
	DB     DBConfig     `env:",prefix=DB_"`
	Auth   AuthConfig   `env:",prefix=AUTH_"`
	Ledger LedgerConfig `env:",prefix=LEDGER_"`
	App    AppConfig    `env:",prefix=APP_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `env:"PORT,default=8080"`
	Host           string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout    int      `env:"READ_TIMEOUT,default=15"`  // seconds
	WriteTimeout   int      `env:"WRITE_TIMEOUT,default=15"` // seconds
	AllowedOrigins []string `env:"CORS_ORIGINS,default=http://localhost:3000"`
	PublicRPS      float64  `env:"PUBLIC_RPS,default=5"` // rate limit for unauthenticated endpoints, per client
	PublicBurst    int      `env:"PUBLIC_BURST,default=10"`
}

// DBConfig holds SQLite settings.
type DBConfig struct {
	Path string `env:"PATH,default=pontos.db"`
}

// AuthConfig holds session-token settings.
type AuthConfig struct {
	Secret   string `env:"SECRET"`
	TTLHours int    `env:"TTL_HOURS,default=8"`
}

// LedgerConfig holds the ledger timing constants, in whole days.
type LedgerConfig struct {
	ReleaseDelayDays int `env:"RELEASE_DELAY_DAYS,default=0"`
	ValidityDays     int `env:"VALIDITY_DAYS,default=180"`
}

// AppConfig holds logging/environment settings.
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the app runs in production.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
