// Package config handles Vertico configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (VERTICO_*)
//  2. Config file (<user config dir>/vertico/config.yaml)
//  3. Built-in defaults
package config

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertico-systems/vertico/internal/paths"
)

const (
	// DefaultDispatcherListen is the default dispatcher bind address (port 3000, loopback).
	DefaultDispatcherListen = "127.0.0.1:3000"
	// DefaultCarPoolSize is the default fixed car pool capacity.
	DefaultCarPoolSize = 10
	// DefaultConnectionPoolSize is the default total connection slots, cars and call pads combined.
	DefaultConnectionPoolSize = 30
	// DefaultQueueDepth is the default per-car stop queue capacity.
	DefaultQueueDepth = 20
	// DefaultCarDialTimeout bounds how long a car controller waits to
	// establish its dispatcher connection before retrying.
	DefaultCarDialTimeout = "5s"
	// DefaultRateLimitPerSecond is the default accepted connections per
	// second, per remote IP, before the dispatcher's accept loop starts
	// rejecting (internal/dispatcher, backed by go-catrate).
	DefaultRateLimitPerSecond = 5
	// DefaultRateLimitBurst is the default burst allowance paired with
	// DefaultRateLimitPerSecond.
	DefaultRateLimitBurst = 10
)

const minIntervalDuration = 1 * time.Millisecond

// Config holds the Vertico configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("dispatcher.listen", DefaultDispatcherListen)
	v.SetDefault("dispatcher.pool.cars", DefaultCarPoolSize)
	v.SetDefault("dispatcher.pool.connections", DefaultConnectionPoolSize)
	v.SetDefault("dispatcher.queue_depth", DefaultQueueDepth)
	v.SetDefault("dispatcher.ratelimit.per_second", DefaultRateLimitPerSecond)
	v.SetDefault("dispatcher.ratelimit.burst", DefaultRateLimitBurst)
	v.SetDefault("car.dial_timeout", DefaultCarDialTimeout)
	v.SetDefault("car.tick_min_ms", 10)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")

	configDir, err := paths.ConfigRoot()
	if err == nil {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VERTICO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			slog.Default().Warn("error reading config file", "component", "config", "event.type", "config.read.warning", "error", err.Error())
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// DispatcherListen returns the dispatcher's TCP listen address.
func (c *Config) DispatcherListen() string {
	return c.GetString("dispatcher.listen")
}

// CarPoolSize returns the fixed car-registry capacity.
func (c *Config) CarPoolSize() int {
	if n := c.GetInt("dispatcher.pool.cars"); n > 0 {
		return n
	}

	return DefaultCarPoolSize
}

// ConnectionPoolSize returns the fixed total connection-slot capacity.
func (c *Config) ConnectionPoolSize() int {
	if n := c.GetInt("dispatcher.pool.connections"); n > 0 {
		return n
	}

	return DefaultConnectionPoolSize
}

// QueueDepth returns the fixed per-car stop queue capacity.
func (c *Config) QueueDepth() int {
	if n := c.GetInt("dispatcher.queue_depth"); n > 0 {
		return n
	}

	return DefaultQueueDepth
}

// RateLimitPerSecond returns the per-IP sustained connection rate the
// dispatcher's accept loop allows before rejecting (internal/dispatcher).
func (c *Config) RateLimitPerSecond() int {
	if n := c.GetInt("dispatcher.ratelimit.per_second"); n > 0 {
		return n
	}

	return DefaultRateLimitPerSecond
}

// RateLimitBurst returns the burst allowance paired with RateLimitPerSecond.
func (c *Config) RateLimitBurst() int {
	if n := c.GetInt("dispatcher.ratelimit.burst"); n > 0 {
		return n
	}

	return DefaultRateLimitBurst
}

// CarDialTimeout returns how long a car controller waits to establish
// its dispatcher connection before retrying.
func (c *Config) CarDialTimeout() time.Duration {
	return c.parseDuration("car.dial_timeout", 5*time.Second)
}

// TelemetryEnabled reports whether OpenTelemetry tracing should be wired up.
func (c *Config) TelemetryEnabled() bool {
	return c.GetBool("telemetry.enabled")
}

// TelemetryOTLPEndpoint returns the configured OTLP HTTP collector endpoint.
func (c *Config) TelemetryOTLPEndpoint() string {
	return c.GetString("telemetry.otlp_endpoint")
}

// parseDuration reads a config key and interprets it as a duration. It
// first tries time.ParseDuration (e.g. "5s"); failing that, a bare
// integer is treated as milliseconds for operator convenience with
// environment variables. Returns fallback if the result doesn't clear
// minIntervalDuration.
func (c *Config) parseDuration(key string, fallback time.Duration) time.Duration {
	raw := c.GetString(key)
	if raw == "" {
		return fallback
	}

	if d, err := time.ParseDuration(raw); err == nil {
		if d < minIntervalDuration {
			return fallback
		}

		return d
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		d := time.Duration(ms) * time.Millisecond
		if d < minIntervalDuration {
			return fallback
		}

		return d
	}

	return fallback
}
