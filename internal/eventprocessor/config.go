// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import "time"

// Config holds pipeline configuration.
type Config struct {
	// Buffer is the per-subscriber channel buffer of the pub/sub.
	// Default: 1024
	Buffer int64

	// CloseTimeout is how long in-flight messages may take on shutdown.
	// Default: 10s
	CloseTimeout time.Duration

	// WriteTimeout bounds one exposure log write.
	// Default: 30s
	WriteTimeout time.Duration

	// Retry configuration for failed writes. After MaxRetries the message
	// goes to the poison topic.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Buffer:               1024,
		CloseTimeout:         10 * time.Second,
		WriteTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMultiplier:      2.0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Buffer <= 0 {
		c.Buffer = def.Buffer
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = def.CloseTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.RetryMaxRetries < 0 {
		c.RetryMaxRetries = 0
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = def.RetryInitialInterval
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = def.RetryMaxInterval
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	return c
}
