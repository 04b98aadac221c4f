// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package main is the entry point for the Marquee recommendation server.

# Application Architecture

The server runs under a Suture v4 supervision tree:

	RootSupervisor ("marquee")
	├── DataSupervisor ("data-layer")
	│   ├── exposure-pipeline  (watermill, exposures to DuckDB)
	│   ├── badger-gc          (value-log compaction)
	│   ├── duckdb-checkpoint  (exposure log WAL flush)
	│   ├── profile-cleanup    (taste profile cache eviction)
	│   └── uptime             (app_uptime_seconds gauge)
	└── APISupervisor ("api-layer")
	    └── http-server        (chi router)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, optional YAML file and environment
 2. Logging: zerolog with JSON/console output
 3. History store: BadgerDB (on disk or in memory)
 4. Exposure log: DuckDB
 5. Scoring sources and the optional metadata resolver
 6. Engine
 7. HTTP router and server
 8. Supervisor tree

# Configuration

	HTTP_PORT=8480
	LOG_LEVEL=info
	LOG_FORMAT=json
	BADGER_PATH=/data/marquee/badger
	DUCKDB_PATH=/data/marquee/exposures.duckdb
	METADATA_URL=http://catalog:8080/items
	CONFIG_PATH=/etc/marquee/config.yaml

Sources are configured in config.yaml; see internal/config.

# Shutdown

SIGINT or SIGTERM cancels the root context. The HTTP server drains within
SHUTDOWN_TIMEOUT, services that fail to stop are reported, and the
stores are closed last.
*/
package main
