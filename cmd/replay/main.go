// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Command marquee-replay evaluates parameter changes offline against the
// DuckDB exposure log.
//
//	marquee-replay run --user 7 --lambda 0.6
//	marquee-replay run --user 7 --weight tmdb=2 --weight trakt=0.5 --format yaml
//	marquee-replay summary --lookback 168h
//
// DuckDB admits a single read-write process, so point --db at a copy of the
// log (or stop the server) while the command runs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
