// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"
)

// Table names
const (
	exposuresTable = "suggestion_exposures"
	feedbackTable  = "feedback"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// initialize creates tables and indexes, then checkpoints.
func (db *DB) initialize() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, q := range indexQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return db.Checkpoint(ctx)
}

// tableCreationQueries returns the schema. Exposures are append-only;
// nothing re-scores or updates a row after it is written.
func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS suggestion_exposures (
			id              VARCHAR PRIMARY KEY,
			request_id      VARCHAR NOT NULL,
			user_id         INTEGER NOT NULL,
			item_id         INTEGER NOT NULL,
			shown_at        TIMESTAMP NOT NULL,
			base_score      DOUBLE NOT NULL,
			consensus_level VARCHAR NOT NULL,
			sources         VARCHAR NOT NULL,
			mmr_lambda      DOUBLE NOT NULL,
			diversity_rank  INTEGER NOT NULL,
			exploratory     BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id       VARCHAR PRIMARY KEY,
			user_id  INTEGER NOT NULL,
			item_id  INTEGER NOT NULL,
			polarity VARCHAR NOT NULL,
			at       TIMESTAMP NOT NULL
		)`,
	}
}

func indexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_exposures_user_shown ON suggestion_exposures(user_id, shown_at)`,
		`CREATE INDEX IF NOT EXISTS idx_exposures_request ON suggestion_exposures(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_user_at ON feedback(user_id, at)`,
	}
}
