// Package config loads and validates configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Workers WorkersConfig `mapstructure:"workers"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Lens    LensConfig    `mapstructure:"lens"`
	Browser BrowserConfig `mapstructure:"browser"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// WorkersConfig governs dispatcher fan-out.
type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// RetryConfig controls the per-task retry budget and backoff schedule.
type RetryConfig struct {
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// LensConfig controls the Lens endpoint and result parsing.
type LensConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`
	UserAgent         string  `mapstructure:"user_agent"`
	MaxResults        int     `mapstructure:"max_results"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	QPS               float64 `mapstructure:"qps"`
}

// BrowserConfig controls headless Chrome session creation.
type BrowserConfig struct {
	Headless         bool `mapstructure:"headless"`
	InitRetries      int  `mapstructure:"init_retries"`
	InitRetryDelayMs int  `mapstructure:"init_retry_delay_ms"`
}

// ProbeConfig controls the pre-flight image URL check.
type ProbeConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LENSCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers.concurrency", 5)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.backoff_initial_ms", 250)
	v.SetDefault("retry.backoff_max_ms", 5000)
	v.SetDefault("lens.endpoint", "https://lens.google.com/uploadbyurl")
	v.SetDefault("lens.user_agent", "lenscrawl/1.0 (+https://github.com/Jester6136/google-lens-crawl)")
	v.SetDefault("lens.max_results", 3)
	v.SetDefault("lens.nav_timeout_seconds", 60)
	v.SetDefault("lens.qps", 1.0)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.init_retries", 3)
	v.SetDefault("browser.init_retry_delay_ms", 2000)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout_seconds", 10)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Lens.Endpoint == "" {
		return fmt.Errorf("lens.endpoint must be set")
	}
	if c.Lens.MaxResults <= 0 {
		return fmt.Errorf("lens.max_results must be > 0")
	}
	if c.Lens.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("lens.nav_timeout_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set when server is enabled")
	}
	return nil
}

// NavTimeout returns the per-navigation deadline.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Lens.NavTimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Retry.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond
}

// InitRetryDelay returns the wait between browser allocation attempts.
func (c Config) InitRetryDelay() time.Duration {
	return time.Duration(c.Browser.InitRetryDelayMs) * time.Millisecond
}

// ProbeTimeout returns the pre-flight fetch deadline.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutSeconds) * time.Second
}
