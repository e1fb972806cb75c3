// Package config loads worklog settings from ~/.config/worklog/config.toml
// and the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved configuration.
type Config struct {
	Env string `toml:"env" env:"WORKLOG_ENV"`

	Database Database `toml:"database"`
	Server   Server   `toml:"server"`
	Payroll  Payroll  `toml:"payroll"`
	Audit    Audit    `toml:"audit"`

	// Timezone is used to turn calendar dates into import ranges and to
	// print local times.
	Timezone string `toml:"timezone" env:"WORKLOG_TIMEZONE"`

	// DefaultUser is used by the CLI when --user is not given.
	DefaultUser string `toml:"default-user" env:"WORKLOG_USER"`
}

type Database struct {
	Driver string `toml:"driver" env:"WORKLOG_DB_DRIVER"`
	// Path is the SQLite file; empty means ~/.worklog/worklog.db.
	Path string `toml:"path" env:"WORKLOG_DB_PATH"`
	URL  string `toml:"url" env:"WORKLOG_DATABASE_URL"`
}

type Server struct {
	Addr              string `toml:"addr" env:"WORKLOG_HTTP_ADDR"`
	StaleAfterMinutes int    `toml:"stale-after-minutes" env:"WORKLOG_STALE_AFTER_MIN"`
	ReapIntervalSec   int    `toml:"reap-interval-seconds" env:"WORKLOG_REAP_INTERVAL_SEC"`
}

type Payroll struct {
	DefaultHourlyRate float64 `toml:"default-hourly-rate" env:"WORKLOG_HOURLY_RATE"`
}

type Audit struct {
	WebhookURL        string `toml:"webhook-url" env:"WORKLOG_AUDIT_WEBHOOK_URL"`
	DiscordWebhookURL string `toml:"discord-webhook-url" env:"WORKLOG_DISCORD_WEBHOOK_URL"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Env:      "production",
		Database: Database{Driver: DriverSQLite},
		Server: Server{
			Addr:              "127.0.0.1:8080",
			StaleAfterMinutes: 30,
			ReapIntervalSec:   60,
		},
		Timezone: "UTC",
	}
}

// DefaultPath is ~/.config/worklog/config.toml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "worklog", "config.toml"), nil
}

// Load reads path (or WORKLOG_CONFIG, or DefaultPath when both are empty),
// applies environment overrides and validates the result.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WORKLOG_CONFIG")
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	cfg.trim()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) trim() {
	c.Env = strings.TrimSpace(c.Env)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Timezone = strings.TrimSpace(c.Timezone)
	c.DefaultUser = strings.TrimSpace(c.DefaultUser)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("WORKLOG_DATABASE_URL is required when driver is %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown database driver %q (want %s or %s)", c.Database.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Server.StaleAfterMinutes <= 0 {
		return fmt.Errorf("stale-after-minutes must be positive, got %d", c.Server.StaleAfterMinutes)
	}
	if c.Server.ReapIntervalSec <= 0 {
		return fmt.Errorf("reap-interval-seconds must be positive, got %d", c.Server.ReapIntervalSec)
	}
	if c.Payroll.DefaultHourlyRate < 0 {
		return fmt.Errorf("default-hourly-rate must not be negative, got %v", c.Payroll.DefaultHourlyRate)
	}
	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone is invalid: %w", err)
	}
	return nil
}

// Location returns the configured time zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Server.StaleAfterMinutes) * time.Minute
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Server.ReapIntervalSec) * time.Second
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
