// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.ToLogging())

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Marquee")

	app, err := newApplication(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize application")
	}

	watchConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := app.run(ctx)
	stop()
	app.close()

	if runErr != nil {
		logging.Error().Err(runErr).Msg("Supervisor tree stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

// watchConfig reloads the log level when the config file changes. Every
// other setting applies on the next restart.
func watchConfig() {
	path := config.FindConfigFile()
	if path == "" {
		return
	}
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid configuration change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Configuration file changed; log level reloaded, restart to apply other settings")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}
