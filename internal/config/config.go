// Package config loads the cartctl configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/migrate"
	"github.com/roach88/cartprice/internal/pricing"
)

// Config is passed explicitly into constructors; nothing reads it
// globally.
type Config struct {
	// Currency is an ISO 4217 code.
	Currency string `yaml:"currency"`

	// Precision overrides the currency's standard minor units.
	Precision *int `yaml:"precision,omitempty"`

	// MergeStrategy is the default strategy for guest cart migration.
	MergeStrategy string `yaml:"merge_strategy"`

	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// Instance is the default cart instance name.
	Instance string `yaml:"instance"`

	// Timezone is the IANA zone calendar rules evaluate in.
	Timezone string `yaml:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Currency:      pricing.DefaultCurrency,
		MergeStrategy: string(migrate.DefaultStrategy),
		Database:      "cart.db",
		Instance:      cart.DefaultInstance,
		Timezone:      "UTC",
		LogLevel:      "info",
	}
}

// Load reads a YAML config file, fills unset fields from Default and
// validates the result. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. Empty input yields Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.MergeStrategy == "" {
		c.MergeStrategy = d.MergeStrategy
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Instance == "" {
		c.Instance = d.Instance
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Money(); err != nil {
		errs = append(errs, err)
	}
	if _, err := migrate.ParseStrategy(c.MergeStrategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Instance) == "" {
		errs = append(errs, errors.New("instance cannot be empty"))
	}
	return errors.Join(errs...)
}

// Money returns the configured currency.
func (c Config) Money() (pricing.Currency, error) {
	precision := -1
	if c.Precision != nil {
		precision = *c.Precision
		if precision < 0 || precision > 8 {
			return pricing.Currency{}, fmt.Errorf("precision must be within 0-8, got %d", precision)
		}
	}
	return pricing.NewCurrency(c.Currency, precision)
}

// Strategy returns the configured merge strategy.
func (c Config) Strategy() migrate.Strategy {
	s, err := migrate.ParseStrategy(c.MergeStrategy)
	if err != nil {
		return migrate.DefaultStrategy
	}
	return s
}

// Location returns the calendar rule time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
