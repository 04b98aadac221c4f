// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
// Source entries are normalized in place with their defaults.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.Recommend.Validate(); err != nil {
		return fmt.Errorf("recommend: %w", err)
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got: %v", c.Server.ShutdownTimeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got: %s", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.RateLimitDisabled {
		return nil
	}
	if c.API.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got: %d", c.API.RateLimitRequests)
	}
	if c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got: %v", c.API.RateLimitWindow)
	}
	if c.API.MaxBodyBytes < 1024 {
		return fmt.Errorf("api max body bytes must be at least 1024, got: %d", c.API.MaxBodyBytes)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("BADGER_PATH is required unless storage.in_memory is set")
	}
	if c.Storage.GCInterval <= 0 {
		return fmt.Errorf("storage gc interval must be positive, got: %v", c.Storage.GCInterval)
	}
	if c.Storage.GCDiscardRatio <= 0 || c.Storage.GCDiscardRatio >= 1 {
		return fmt.Errorf("storage gc discard ratio must be in (0, 1), got: %v", c.Storage.GCDiscardRatio)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS cannot be negative, got: %d", c.Database.Threads)
	}
	if c.Database.CheckpointInterval < 0 {
		return fmt.Errorf("DUCKDB_CHECKPOINT cannot be negative, got: %v", c.Database.CheckpointInterval)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if !c.Pipeline.Enabled {
		return nil
	}
	if c.Pipeline.Buffer <= 0 {
		return fmt.Errorf("PIPELINE_BUFFER must be positive, got: %d", c.Pipeline.Buffer)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("PIPELINE_MAX_RETRIES cannot be negative, got: %d", c.Pipeline.MaxRetries)
	}
	return nil
}

func (c *Config) validateMetadata() error {
	if c.Metadata.URL == "" {
		return nil
	}
	if err := validateHTTPURL(c.Metadata.URL, "METADATA_URL"); err != nil {
		return err
	}
	if c.Metadata.Timeout <= 0 {
		return fmt.Errorf("metadata timeout must be positive, got: %v", c.Metadata.Timeout)
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		src := c.Sources[i].withDefaults()
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
		if err := validateHTTPURL(src.URL, fmt.Sprintf("sources[%d].url", i)); err != nil {
			return err
		}
		c.Sources[i] = src
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true,
		"error": true, "fatal": true, "panic": true, "disabled": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled, got: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL requires an absolute http(s) URL without a query string.
// Paths are allowed; scoring endpoints are usually routes.
func validateHTTPURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("%s must use http or https, got scheme %q", field, u.Scheme)
	case u.Host == "":
		return fmt.Errorf("%s has no host", field)
	case u.RawQuery != "":
		return fmt.Errorf("%s must not carry a query string (?%s)", field, u.RawQuery)
	}
	return nil
}
