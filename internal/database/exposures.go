// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

var _ recommend.ExposureLog = (*DB)(nil)

// RecordExposures appends exposures in a single transaction. Exposures
// without an ID get a fresh UUID.
func (db *DB) RecordExposures(ctx context.Context, exposures []recommend.SuggestionExposure) (err error) {
	if len(exposures) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", exposuresTable, time.Since(start), err) }()

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exposure insert: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO suggestion_exposures
		(id, request_id, user_id, item_id, shown_at, base_score, consensus_level,
		 sources, mmr_lambda, diversity_rank, exploratory)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exposure insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range exposures {
		e := &exposures[i]
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		sources, err := json.Marshal(e.Sources)
		if err != nil {
			return fmt.Errorf("encode sources: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			id, e.RequestID, e.UserID, e.ItemID, e.ShownAt.UTC(), e.BaseScore,
			e.ConsensusLevel.String(), string(sources), e.MMRLambda, e.DiversityRank, e.Exploratory,
		); err != nil {
			return fmt.Errorf("insert exposure %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exposures: %w", err)
	}
	return nil
}

// Exposures returns the user's exposures shown at or after since, ordered
// by shown_at then id.
func (db *DB) Exposures(ctx context.Context, userID int, since time.Time) (out []recommend.SuggestionExposure, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", exposuresTable, time.Since(start), err) }()

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, request_id, user_id, item_id, shown_at,
		base_score, consensus_level, sources, mmr_lambda, diversity_rank, exploratory
		FROM suggestion_exposures
		WHERE user_id = ? AND shown_at >= ?
		ORDER BY shown_at, id`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query exposures: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var (
			e       recommend.SuggestionExposure
			level   string
			sources string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.UserID, &e.ItemID, &e.ShownAt,
			&e.BaseScore, &level, &sources, &e.MMRLambda, &e.DiversityRank, &e.Exploratory); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		e.ConsensusLevel = recommend.ParseConsensusLevel(level)
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("decode sources of exposure %s: %w", e.ID, err)
		}
		e.ShownAt = e.ShownAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exposures: %w", err)
	}
	return out, nil
}

// RecordFeedback appends feedback events in a single transaction.
func (db *DB) RecordFeedback(ctx context.Context, feedback []recommend.Feedback) (err error) {
	if len(feedback) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", feedbackTable, time.Since(start), err) }()

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin feedback insert: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feedback (id, user_id, item_id, polarity, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare feedback insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range feedback {
		f := &feedback[i]
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), f.UserID, f.ItemID, string(f.Polarity), f.At.UTC()); err != nil {
			return fmt.Errorf("insert feedback for item %d: %w", f.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feedback: %w", err)
	}
	return nil
}

// Feedback returns the user's feedback given at or after since, oldest first.
func (db *DB) Feedback(ctx context.Context, userID int, since time.Time) (out []recommend.Feedback, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", feedbackTable, time.Since(start), err) }()

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT user_id, item_id, polarity, at
		FROM feedback
		WHERE user_id = ? AND at >= ?
		ORDER BY at, item_id`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var (
			f        recommend.Feedback
			polarity string
		)
		if err := rows.Scan(&f.UserID, &f.ItemID, &polarity, &f.At); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.Polarity = recommend.Polarity(polarity)
		f.At = f.At.UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}

// AcceptanceSummary aggregates logged outcomes per consensus level.
type AcceptanceSummary struct {
	Level     recommend.ConsensusLevel `json:"level"`
	Exposures int                      `json:"exposures"`
	Positive  int                      `json:"positive"`
	Negative  int                      `json:"negative"`
}

// AcceptanceByLevel counts exposures and the feedback they drew per
// consensus level across all users since the given time. Feedback is joined
// on (user, item) and must come at or after the exposure.
func (db *DB) AcceptanceByLevel(ctx context.Context, since time.Time) (out []AcceptanceSummary, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("aggregate", exposuresTable, time.Since(start), err) }()

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		WITH outcome AS (
			SELECT e.id, e.consensus_level,
				bool_or(f.polarity = 'positive') AS positive,
				bool_or(f.polarity = 'negative') AS negative
			FROM suggestion_exposures e
			LEFT JOIN feedback f
				ON f.user_id = e.user_id AND f.item_id = e.item_id AND f.at >= e.shown_at
			WHERE e.shown_at >= ?
			GROUP BY e.id, e.consensus_level
		)
		SELECT consensus_level,
			count(*) AS exposures,
			count(*) FILTER (WHERE positive) AS positive,
			count(*) FILTER (WHERE negative) AS negative
		FROM outcome
		GROUP BY consensus_level
		ORDER BY consensus_level`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query acceptance: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var (
			s     AcceptanceSummary
			level string
		)
		if err := rows.Scan(&level, &s.Exposures, &s.Positive, &s.Negative); err != nil {
			return nil, fmt.Errorf("scan acceptance: %w", err)
		}
		s.Level = recommend.ParseConsensusLevel(level)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acceptance: %w", err)
	}
	return out, nil
}

// scanCount runs a COUNT(*) query.
func (db *DB) scanCount(ctx context.Context, table string) (int, error) {
	var n int
	row := db.conn.QueryRowContext(ctx, "SELECT count(*) FROM "+table) //nolint:gosec // table names are constants
	if err := row.Scan(&n); err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}

// RecordCounts returns row counts per table.
func (db *DB) RecordCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	counts := make(map[string]int, 2)
	for _, table := range []string{exposuresTable, feedbackTable} {
		n, err := db.scanCount(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
