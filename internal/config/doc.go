// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package config provides centralized configuration management for Marquee.

Configuration is layered with Koanf v2. Later layers win:

 1. Defaults from defaultConfig()
 2. Optional YAML file: CONFIG_PATH, then config.yaml, config.yml,
    /etc/marquee/config.yaml, /etc/marquee/config.yml
 3. Mapped environment variables

# Environment Variables

Only the variables listed in envMappings are read; everything else in the
environment is ignored.

Server:
  - HTTP_PORT: Listen port (default: 8480)
  - HTTP_HOST: Bind address (default: 0.0.0.0)
  - ENVIRONMENT: development or production

Logging:
  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json or console (default: json)
  - LOG_CALLER: include caller file:line

Storage:
  - BADGER_PATH: learning-state store directory
  - BADGER_IN_MEMORY: run BadgerDB without disk (tests, demos)
  - DUCKDB_PATH: exposure log database file

Recommendation:
  - RECOMMEND_MMR_LAMBDA: diversity strength in [0,1]
  - RECOMMEND_SOURCE_WEIGHTS: "tmdb=2,trakt=1"
  - RECOMMEND_EXPLORATION_ENABLED, RECOMMEND_MAX_CANDIDATES, ...
  - REPLAY_SERVING_SIZE, REPLAY_LOOKBACK

Scoring sources are a list and can only be configured in the YAML file:

	sources:
	  - name: tmdb
	    url: http://scores.internal:9100/score
	    timeout: 2s
	    rate_per_second: 50

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal().Err(err).Msg("config")
	}
	logging.Init(cfg.Logging.ToLogging())
*/
package config
