// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package logging provides centralized zerolog-based logging for Marquee.
//
//   - JSON output for production, console output for development
//   - Context-aware logging with request and user ID propagation
//   - An slog bridge for libraries that need *slog.Logger (sutureslog)
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Msg("server starting")
//	logging.Ctx(ctx).Warn().Str("source", name).Msg("source unavailable")
//
// # Configuration
//
// The server reads logging settings through internal/config:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller info (default: false)
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event
// is never written.
package logging
