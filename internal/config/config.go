// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and GENEVA_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Store drivers accepted by StoreDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects json or console output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":3000".
	Addr string `koanf:"addr"`

	// StoreDriver selects the record store: sqlite, postgres or memory.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// DatabaseURL is the connection string used by the postgres driver.
	DatabaseURL string `koanf:"database_url"`

	// PGMaxConns and PGMinConns size the postgres pool.
	PGMaxConns int32 `koanf:"pg_max_conns"`
	PGMinConns int32 `koanf:"pg_min_conns"`

	// MaxBodyBytes caps JSON request bodies; uploads carry whole datasets.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CORSOrigins is a comma-separated list of allowed origins; "*" allows any.
	CORSOrigins string `koanf:"cors_origins"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MetricsInterval is how often system and record gauges refresh.
	MetricsInterval time.Duration `koanf:"metrics_interval"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLabels adds constant labels, e.g. "env=prod,region=eu".
	MetricsLabels string `koanf:"metrics_labels"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		Addr:             ":3000",
		StoreDriver:      DriverSQLite,
		SQLitePath:       "geneva.db",
		PGMaxConns:       10,
		PGMinConns:       2,
		MaxBodyBytes:     50 << 20,
		CORSOrigins:      "*",
		ShutdownTimeout:  10 * time.Second,
		MetricsInterval:  10 * time.Second,
		MetricsNamespace: "geneva",
		MetricsSubsystem: "evaluation",
	}
}

// AllowedOrigins splits CORSOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// ConstLabels parses MetricsLabels into a label set. Entries without "="
// or with an empty name are dropped.
func (c *Config) ConstLabels() map[string]string {
	out := map[string]string{}
	for _, kv := range strings.Split(c.MetricsLabels, ",") {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}

// DSN returns the data source for the selected driver.
func (c *Config) DSN() string {
	if strings.EqualFold(c.StoreDriver, DriverPostgres) {
		return c.DatabaseURL
	}
	return c.SQLitePath
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return eris.Wrap(ErrInvalidConfig, "addr must not be empty")
	}
	switch strings.ToLower(c.StoreDriver) {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return eris.Wrap(ErrInvalidConfig, "sqlite_path must not be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return eris.Wrap(ErrInvalidConfig, "database_url is required for postgres")
		}
		if c.PGMinConns > c.PGMaxConns {
			return eris.Wrap(ErrInvalidConfig, "pg_min_conns exceeds pg_max_conns")
		}
	case DriverMemory:
	default:
		return eris.Wrapf(ErrInvalidConfig, "unknown store_driver %q", c.StoreDriver)
	}
	if c.MaxBodyBytes <= 0 {
		return eris.Wrap(ErrInvalidConfig, "max_body_bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return eris.Wrap(ErrInvalidConfig, "shutdown_timeout must be positive")
	}
	if c.MetricsInterval <= 0 {
		return eris.Wrap(ErrInvalidConfig, "metrics_interval must be positive")
	}
	if c.MetricsNamespace == "" {
		return eris.Wrap(ErrInvalidConfig, "metrics_namespace must not be empty")
	}
	return nil
}
