// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package services provides suture.Service wrappers for Marquee components.

Each wrapper implements suture's context-aware Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

HTTPService:
  - Runs ListenAndServe in a goroutine
  - Shuts down gracefully with its own deadline once the context ends
  - Returns listen failures so the supervisor restarts with backoff

PeriodicService:
  - Runs a Task on a fixed interval, each run bounded by a timeout
  - Logs and counts failed runs without leaving the schedule
  - Backs the maintenance services: NewCompactionService (badger value-log
    GC), NewCheckpointService (DuckDB checkpoint) and
    NewProfileCleanupService (taste-profile cache eviction)

All services implement fmt.Stringer so suture events name them.
*/
package services
