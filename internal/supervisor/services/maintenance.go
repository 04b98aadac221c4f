// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ValueLogCollector is satisfied by *storage.Store.
type ValueLogCollector interface {
	RunValueLogGC(discardRatio float64) (bool, error)
}

// Checkpointer is satisfied by *database.DB.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// ProfileCleaner is satisfied by *engine.Engine.
type ProfileCleaner interface {
	CleanupProfiles() int
}

// NewCompactionService runs badger value-log GC on an interval.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCompactionService(store ValueLogCollector, discardRatio float64, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	const name = "badger-gc"
	log := logger.With().Str("service", name).Logger()
	return NewPeriodicService(func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rewritten, err := store.RunValueLogGC(discardRatio)
		if err != nil {
			return err
		}
		if rewritten {
			log.Info().Float64("discard_ratio", discardRatio).Msg("value log compacted")
		}
		return nil
	}, PeriodicConfig{Name: name, Interval: interval}, logger)
}

// NewCheckpointService flushes the DuckDB WAL into the database file.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCheckpointService(db Checkpointer, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	return NewPeriodicService(db.Checkpoint, PeriodicConfig{Name: "duckdb-checkpoint", Interval: interval}, logger)
}

// NewProfileCleanupService evicts expired taste profiles from the engine cache.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewProfileCleanupService(cleaner ProfileCleaner, interval time.Duration, logger zerolog.Logger) *PeriodicService {
	const name = "profile-cleanup"
	log := logger.With().Str("service", name).Logger()
	return NewPeriodicService(func(context.Context) error {
		if n := cleaner.CleanupProfiles(); n > 0 {
			log.Debug().Int("evicted", n).Msg("expired profiles evicted")
		}
		return nil
	}, PeriodicConfig{Name: name, Interval: interval}, logger)
}
