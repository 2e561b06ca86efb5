// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Vendor  VendorConfig `yaml:"vendor"`
	Symbols []string     `yaml:"symbols"`
	Engine  EngineConfig `yaml:"engine"`
	Store   StoreConfig  `yaml:"store"`
	Server  ServerConfig `yaml:"server"`
	System  SystemConfig `yaml:"system"`
	Alerts  AlertConfig  `yaml:"alerts"`
}

// VendorConfig contains the price vendor settings
type VendorConfig struct {
	BaseURL         string `yaml:"base_url"`
	Credential      Secret `yaml:"credential"`
	RateLimitPerSec int    `yaml:"rate_limit_per_sec"`
	TimeoutMs       int    `yaml:"timeout_ms"`
}

// EngineConfig contains tick engine and scheduler settings
type EngineConfig struct {
	TickPeriodMs          int            `yaml:"tick_period_ms"`
	HeartbeatSpec         string         `yaml:"heartbeat_spec"`
	DefaultInitialBalance float64        `yaml:"default_initial_balance"`
	DurationBounds        DurationBounds `yaml:"duration_bounds_minutes"`
	GamePoolSize          int            `yaml:"game_pool_size"`
	GamePoolBuffer        int            `yaml:"game_pool_buffer"`
}

// DurationBounds bounds the accepted game duration in minutes
type DurationBounds struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// StoreConfig contains data store settings
type StoreConfig struct {
	Driver        string `yaml:"driver"` // sqlite | postgres | memory
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

// ServerConfig contains the control and metrics listener settings
type ServerConfig struct {
	ControlPort int `yaml:"control_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// SystemConfig contains system-level settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// AlertConfig contains alert channel credentials
type AlertConfig struct {
	SlackWebhook   Secret `yaml:"slack_webhook"`
	TelegramToken  Secret `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig reads, expands, parses and validates a YAML configuration file.
// A .env file in the working directory is loaded first so ${VAR} references
// in the YAML can resolve against it.
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills zero values with the documented defaults
func (c *Config) applyDefaults() {
	if c.Engine.TickPeriodMs == 0 {
		c.Engine.TickPeriodMs = 10000
	}
	if c.Engine.HeartbeatSpec == "" {
		c.Engine.HeartbeatSpec = "@every 1m"
	}
	if c.Engine.DefaultInitialBalance == 0 {
		c.Engine.DefaultInitialBalance = 10000
	}
	if c.Engine.DurationBounds.Min == 0 {
		c.Engine.DurationBounds.Min = 1
	}
	if c.Engine.DurationBounds.Max == 0 {
		c.Engine.DurationBounds.Max = 1440
	}
	if c.Engine.GamePoolSize == 0 {
		c.Engine.GamePoolSize = 8
	}
	if c.Engine.GamePoolBuffer == 0 {
		c.Engine.GamePoolBuffer = 64
	}
	if c.Vendor.RateLimitPerSec == 0 {
		c.Vendor.RateLimitPerSec = 10
	}
	if c.Vendor.TimeoutMs == 0 {
		c.Vendor.TimeoutMs = 5000
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = "alpharoyale.db"
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 30
	}
	if c.Server.ControlPort == 0 {
		c.Server.ControlPort = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
}

// Validate checks the configuration for semantic errors
func (c *Config) Validate() error {
	if err := c.validateVendor(); err != nil {
		return err
	}
	if err := c.validateSymbols(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateVendor() error {
	if c.Vendor.BaseURL == "" {
		return ValidationError{
			Field:   "vendor.base_url",
			Message: "price vendor base URL is required",
		}
	}
	if !strings.HasPrefix(c.Vendor.BaseURL, "http://") && !strings.HasPrefix(c.Vendor.BaseURL, "https://") {
		return ValidationError{
			Field:   "vendor.base_url",
			Value:   c.Vendor.BaseURL,
			Message: "must be an http(s) URL",
		}
	}
	if c.Vendor.RateLimitPerSec < 1 {
		return ValidationError{
			Field:   "vendor.rate_limit_per_sec",
			Value:   c.Vendor.RateLimitPerSec,
			Message: "must be at least 1",
		}
	}
	return nil
}

func (c *Config) validateSymbols() error {
	if len(c.Symbols) == 0 {
		return ValidationError{
			Field:   "symbols",
			Message: "at least one tracked symbol is required",
		}
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, sym := range c.Symbols {
		if sym == "" {
			return ValidationError{
				Field:   "symbols",
				Message: "symbol must not be empty",
			}
		}
		if seen[sym] {
			return ValidationError{
				Field:   "symbols",
				Value:   sym,
				Message: "duplicate symbol",
			}
		}
		seen[sym] = true
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.TickPeriodMs < 1000 {
		return ValidationError{
			Field:   "engine.tick_period_ms",
			Value:   c.Engine.TickPeriodMs,
			Message: "must be at least 1000",
		}
	}
	if c.Engine.DefaultInitialBalance <= 0 {
		return ValidationError{
			Field:   "engine.default_initial_balance",
			Value:   c.Engine.DefaultInitialBalance,
			Message: "must be positive",
		}
	}
	b := c.Engine.DurationBounds
	if b.Min < 1 || b.Max > 1440 || b.Min > b.Max {
		return ValidationError{
			Field:   "engine.duration_bounds_minutes",
			Value:   fmt.Sprintf("{min:%d,max:%d}", b.Min, b.Max),
			Message: "must satisfy 1 <= min <= max <= 1440",
		}
	}
	if c.Engine.GamePoolSize < 1 {
		return ValidationError{
			Field:   "engine.game_pool_size",
			Value:   c.Engine.GamePoolSize,
			Message: "must be at least 1",
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: "must be one of: sqlite, postgres, memory",
		}
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return ValidationError{
			Field:   "store.dsn",
			Message: "required for sqlite and postgres drivers",
		}
	}
	if c.Store.RetentionDays < 1 {
		return ValidationError{
			Field:   "store.retention_days",
			Value:   c.Store.RetentionDays,
			Message: "must be at least 1",
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	for field, port := range map[string]int{
		"server.control_port": c.Server.ControlPort,
		"server.metrics_port": c.Server.MetricsPort,
	} {
		if port < 1 || port > 65535 {
			return ValidationError{
				Field:   field,
				Value:   port,
				Message: "must be a valid TCP port",
			}
		}
	}
	if c.Server.ControlPort == c.Server.MetricsPort {
		return ValidationError{
			Field:   "server.metrics_port",
			Value:   c.Server.MetricsPort,
			Message: "must differ from control_port",
		}
	}
	return nil
}

// String returns a string representation of the configuration. Secret fields
// redact themselves through the Secret type.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		Vendor: VendorConfig{
			BaseURL:    "https://vendor.test/api/v1",
			Credential: "test-token",
		},
		Symbols: []string{"BTC", "ETH"},
		Store: StoreConfig{
			Driver: "memory",
		},
	}
	cfg.applyDefaults()
	return cfg
}
