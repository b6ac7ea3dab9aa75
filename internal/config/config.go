// Package config defines service configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file named by
// PIXELSYNC_CONFIG, then PIXELSYNC_* environment variables (which may come
// from a .env file).
package config

import (
	"context"
	"fmt"
	"time"
)

// Supported values.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// HTTPWriteTimeoutMS must cover a whole batch triggered over HTTP.
	HTTPWriteTimeoutMS int `koanf:"http_write_timeout_ms"`

	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	StatsEndpoint  string `koanf:"stats_endpoint"`
	UserAgent      string `koanf:"user_agent"`
	FetchTimeoutMS int    `koanf:"fetch_timeout_ms"`

	RetryDefaultDelayMS int `koanf:"retry_default_delay_ms"`
	RetryMaxDelayMS     int `koanf:"retry_max_delay_ms"`
	PacingMS            int `koanf:"pacing_ms"`
	WorkerCount         int `koanf:"worker_count"`
	QueueSize           int `koanf:"queue_size"`

	ScheduleEnabled bool   `koanf:"schedule_enabled"`
	ScheduleAt      string `koanf:"schedule_at"`

	// CronSecret guards the HTTP batch trigger. Empty disables it.
	CronSecret string `koanf:"cron_secret"`

	ProgressDefaultDays int `koanf:"progress_default_days"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		HTTPWriteTimeoutMS:  300_000,
		DBDriver:            DriverSQLite,
		DBDSN:               "file:pixelsync.db?_busy_timeout=5000",
		StatsEndpoint:       "https://leetcode.com/graphql",
		UserAgent:           "PixelSync/1.0",
		FetchTimeoutMS:      8000,
		RetryDefaultDelayMS: 1000,
		RetryMaxDelayMS:     3000,
		PacingMS:            200,
		WorkerCount:         1,
		QueueSize:           1024,
		ScheduleEnabled:     true,
		ScheduleAt:          "00:10",
		ProgressDefaultDays: 14,
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DBDSN == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	case c.FetchTimeoutMS <= 0:
		return fmt.Errorf("%w: fetch_timeout_ms must be positive", ErrInvalidConfig)
	case c.RetryDefaultDelayMS < 0 || c.RetryMaxDelayMS < 0 || c.PacingMS < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	if _, err := time.Parse("15:04", c.ScheduleAt); err != nil {
		return fmt.Errorf("%w: schedule_at %q is not HH:MM", ErrInvalidConfig, c.ScheduleAt)
	}
	return nil
}

// FetchTimeout is FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration { return ms(c.FetchTimeoutMS) }

// RetryDefaultDelay is RetryDefaultDelayMS as a duration.
func (c *Config) RetryDefaultDelay() time.Duration { return ms(c.RetryDefaultDelayMS) }

// RetryMaxDelay is RetryMaxDelayMS as a duration.
func (c *Config) RetryMaxDelay() time.Duration { return ms(c.RetryMaxDelayMS) }

// Pacing is PacingMS as a duration.
func (c *Config) Pacing() time.Duration { return ms(c.PacingMS) }

// HTTPWriteTimeout is HTTPWriteTimeoutMS as a duration.
func (c *Config) HTTPWriteTimeout() time.Duration { return ms(c.HTTPWriteTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
