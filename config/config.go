// Package config loads the service configuration from a TOML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port        string   `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver        string `toml:"driver"` // sqlite | mongo
	Path          string `toml:"path"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

type LedgerConfig struct {
	Timezone string `toml:"timezone"`
	Locale   string `toml:"locale"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        "8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:        "sqlite",
			Path:          "./ponto.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "ponto",
		},
		Ledger: LedgerConfig{
			Timezone: "America/Sao_Paulo",
			Locale:   "pt-BR",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: "1h",
		},
	}
}

// Load reads path on top of the defaults, then applies env overrides.
// An empty path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Server.Port = getEnv("PONTO_PORT", cfg.Server.Port)
	cfg.Database.Driver = getEnv("PONTO_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = getEnv("PONTO_DB_PATH", cfg.Database.Path)
	cfg.Database.MongoURI = getEnv("MONGODB_URI", cfg.Database.MongoURI)
	cfg.Database.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.Database.MongoDatabase)
	cfg.Ledger.Timezone = getEnv("PONTO_TIMEZONE", cfg.Ledger.Timezone)
	cfg.Ledger.Locale = getEnv("PONTO_LOCALE", cfg.Ledger.Locale)
	if v := os.Getenv("PONTO_SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("PONTO_SCHEDULER_ENABLED: %w", err)
		}
		cfg.Scheduler.Enabled = enabled
	}

	cfg.Normalize()
	return cfg, cfg.Validate()
}

// Normalize canonicalizes free-form values so later lookups can compare
// them exactly. Call it after every override and before Validate.
func (c *Config) Normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

// Validate checks the values that can only fail at startup.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SchedulerInterval(); err != nil {
		return err
	}
	return nil
}

// Location resolves the ledger timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Ledger.Timezone, err)
	}
	return loc, nil
}

func (c Config) SchedulerInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Scheduler.Interval)
	if err != nil {
		return 0, fmt.Errorf("scheduler interval %q: %w", c.Scheduler.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("scheduler interval must be positive, got %s", d)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
