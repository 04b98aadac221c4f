// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/marquee/internal/recommend"
)

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig is the bottom layer; file and environment values override it.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8480,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		API: APIConfig{
			RateLimitRequests:  100,
			RateLimitWindow:    time.Minute,
			RateLimitDisabled:  false,
			MaxBodyBytes:       4 << 20, // 4MB, candidate pools can be large
			CORSAllowedOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Caller:    false,
			Timestamp: true,
		},
		Storage: StorageConfig{
			Path:           "/data/marquee/badger",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Database: DatabaseConfig{
			Path:               "/data/marquee/exposures.duckdb",
			MaxMemory:          "1GB",
			Threads:            0,
			CheckpointInterval: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Enabled:      true,
			Buffer:       1024,
			MaxRetries:   3,
			WriteTimeout: 30 * time.Second,
		},
		Metadata: MetadataConfig{
			URL:     "",
			Timeout: 2 * time.Second,
		},
		Sources:   nil,
		Recommend: *recommend.DefaultConfig(),
	}
}

// LoadWithKoanf layers defaults, the optional YAML file and mapped
// environment variables, in increasing priority, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := FindConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns CONFIG_PATH when it exists, else the first of
// DefaultConfigPaths that exists.
func FindConfigFile() string {
	candidates := DefaultConfigPaths
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		candidates = append([]string{p}, candidates...)
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// mapConfigPaths defines which config paths accept "name=value,name=value"
// strings from the environment.
var mapConfigPaths = []string{
	"recommend.sources.weights",
}

// processMapFields converts "name=value" lists to float maps for known map
// fields. Env vars arrive as strings while the config expects maps.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strings.TrimSpace(strVal) == "" {
			continue
		}
		parsed, err := ParseWeights(strings.Split(strVal, ","))
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		// Delete first so the map replaces, rather than merges with, the string.
		k.Delete(path)
		if err := k.Set(path, parsed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// ParseWeights parses "name=weight" pairs. Empty entries are skipped.
func ParseWeights(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid weight %q, want name=value", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %w", name, err)
		}
		out[name] = w
	}
	return out, nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// API
	"rate_limit_requests": "api.rate_limit_requests",
	"rate_limit_window":   "api.rate_limit_window",
	"disable_rate_limit":  "api.rate_limit_disabled",
	"max_body_bytes":      "api.max_body_bytes",
	"cors_origins":        "api.cors_allowed_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Storage
	"badger_path":        "storage.path",
	"badger_in_memory":   "storage.in_memory",
	"badger_gc_interval": "storage.gc_interval",

	// Exposure log
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"duckdb_checkpoint": "database.checkpoint_interval",

	// Exposure pipeline
	"pipeline_enabled":     "pipeline.enabled",
	"pipeline_buffer":      "pipeline.buffer",
	"pipeline_max_retries": "pipeline.max_retries",

	// Metadata resolver
	"metadata_url":     "metadata.url",
	"metadata_timeout": "metadata.timeout",

	// Recommendation engine
	"recommend_source_weights":        "recommend.sources.weights",
	"recommend_source_default_weight": "recommend.sources.default_weight",
	"recommend_source_timeout":        "recommend.sources.timeout",
	"recommend_mmr_lambda":            "recommend.diversity.mmr_lambda",
	"recommend_exploration_enabled":   "recommend.exploration.enabled",
	"recommend_exploration_initial":   "recommend.exploration.initial_rate",
	"recommend_exploration_min":       "recommend.exploration.min_rate",
	"recommend_exploration_max":       "recommend.exploration.max_rate",
	"recommend_niche_filtering":       "recommend.filter.niche_filtering",
	"recommend_runtime_filtering":     "recommend.filter.runtime_filtering",
	"recommend_max_boost":             "recommend.boosts.max_total",
	"recommend_max_candidates":        "recommend.limits.max_candidates",
	"recommend_default_k":             "recommend.limits.default_k",
	"recommend_max_k":                 "recommend.limits.max_k",
	"recommend_request_timeout":       "recommend.limits.request_timeout",
	"recommend_cache_enabled":         "recommend.cache.enabled",
	"recommend_cache_ttl":             "recommend.cache.ttl",
	"replay_serving_size":             "recommend.replay.serving_size",
	"replay_lookback":                 "recommend.replay.lookback",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
//   - BADGER_PATH -> storage.path
//   - RECOMMEND_MMR_LAMBDA -> recommend.diversity.mmr_lambda
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// cannot pollute the config.
	return ""
}

// WatchConfigFile calls callback whenever the file at path changes.
// Watch errors are dropped; the previous configuration stays in effect.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
