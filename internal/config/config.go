// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override selected settings
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	API       APIConfig        `koanf:"api"`
	Logging   LoggingConfig    `koanf:"logging"`
	Storage   StorageConfig    `koanf:"storage"`
	Database  DatabaseConfig   `koanf:"database"`
	Pipeline  PipelineConfig   `koanf:"pipeline"`
	Metadata  MetadataConfig   `koanf:"metadata"`
	Sources   []SourceConfig   `koanf:"sources"`
	Recommend recommend.Config `koanf:"recommend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // "development" or "production"
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIConfig holds API request limits.
type APIConfig struct {
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`

	// CORSAllowedOrigins is empty by default, which disables cross-origin access.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	Caller    bool   `koanf:"caller"`
	Timestamp bool   `koanf:"timestamp"`
}

// ToLogging converts to the logging package configuration.
func (l LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:     l.Level,
		Format:    l.Format,
		Caller:    l.Caller,
		Timestamp: l.Timestamp,
		Output:    os.Stderr,
	}
}

// StorageConfig configures the BadgerDB learning-state store.
type StorageConfig struct {
	Path           string        `koanf:"path"`
	InMemory       bool          `koanf:"in_memory"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// DatabaseConfig configures the DuckDB exposure log.
type DatabaseConfig struct {
	Path               string        `koanf:"path"`
	MaxMemory          string        `koanf:"max_memory"`
	Threads            int           `koanf:"threads"` // 0 = DuckDB default
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
}

// PipelineConfig configures the asynchronous exposure pipeline. When
// disabled the engine writes to DuckDB on the request path.
type PipelineConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Buffer       int64         `koanf:"buffer"`
	MaxRetries   int           `koanf:"max_retries"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// MetadataConfig configures the HTTP metadata resolver.
// An empty URL disables remote resolution; candidates must then carry
// metadata inline.
type MetadataConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// SourceConfig describes one remote scoring source.
type SourceConfig struct {
	Name          string        `koanf:"name"`
	URL           string        `koanf:"url"`
	Timeout       time.Duration `koanf:"timeout"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`

	// Circuit breaker settings
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests"`
	BreakerInterval         time.Duration `koanf:"breaker_interval"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
}

// withDefaults fills zero-valued source settings.
func (s SourceConfig) withDefaults() SourceConfig {
	if s.Timeout <= 0 {
		s.Timeout = 2 * time.Second
	}
	if s.RatePerSecond <= 0 {
		s.RatePerSecond = 50
	}
	if s.Burst <= 0 {
		s.Burst = 10
	}
	if s.BreakerMaxRequests == 0 {
		s.BreakerMaxRequests = 3
	}
	if s.BreakerInterval <= 0 {
		s.BreakerInterval = time.Minute
	}
	if s.BreakerTimeout <= 0 {
		s.BreakerTimeout = 30 * time.Second
	}
	if s.BreakerFailureThreshold == 0 {
		s.BreakerFailureThreshold = 5
	}
	return s
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load loads configuration using Koanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
