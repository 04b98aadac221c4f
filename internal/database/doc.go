// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package database provides the DuckDB-backed exposure and feedback log.

Every served suggestion is written once to suggestion_exposures with the
parameters it was ranked under (base score, consensus level, sources, MMR
lambda, final position). Explicit feedback goes to the feedback table. The
counterfactual replay evaluator reads both; nothing here is consulted on the
serving path.

Tables:
  - suggestion_exposures: append-only, indexed by (user_id, shown_at)
  - feedback: append-only, indexed by (user_id, at)

List-valued columns (sources) are stored as JSON text.

Usage:

	db, err := database.New(&cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	exposures, err := db.Exposures(ctx, userID, time.Now().Add(-30*24*time.Hour))
*/
package database
