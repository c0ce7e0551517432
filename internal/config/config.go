// Package config provides centralized configuration for the data gate.
// Values come from defaults, an optional YAML file, and DATAGATE_* env vars.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	// Environment is "development" or "production". Production force-clears
	// payment test mode.
	Environment string `mapstructure:"environment"`

	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Limiter LimiterConfig `mapstructure:"limiter"`
	Payment PaymentConfig `mapstructure:"payment"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig configures the optional Redis counter store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LimiterConfig configures the free-tier quota.
type LimiterConfig struct {
	// Driver selects the durable counter backend: "libsql", "redis", or
	// "memory" for process-local only.
	Driver string `mapstructure:"driver"`

	// FreeRequests is the free-tier quota per caller per window.
	FreeRequests int `mapstructure:"free_requests"`

	// WindowSeconds is the quota window length.
	WindowSeconds int `mapstructure:"window_seconds"`

	// StoreTimeout bounds each durable-store call before degrading to the
	// in-process window.
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	// SweepInterval controls how often expired counter rows are purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PaymentConfig configures x402 settlement.
type PaymentConfig struct {
	FacilitatorURL string `mapstructure:"facilitator_url"`
	Network        string `mapstructure:"network"`
	PayTo          string `mapstructure:"pay_to"`
	TestMode       bool   `mapstructure:"test_mode"`
	APIKeyID       string `mapstructure:"api_key_id"`
	APIKeySecret   string `mapstructure:"api_key_secret"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
