// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
)

const (
	memoryPath       = ":memory:"
	defaultMaxMemory = "1GB"
	queryTimeout     = 30 * time.Second
)

// DB is the DuckDB-backed exposure and feedback log.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the log at cfg.Path and creates the schema. ":memory:" opens
// a private in-memory database.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = defaultMaxMemory
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != memoryPath && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create exposure log directory %s: %w", dir, err)
		}
	}

	// Extensions stay off so startup never touches the network.
	dsn := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s"+
		"&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open exposure log: %w", err)
	}
	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize exposure log: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("exposure log opened")
	return db, nil
}

// Close checkpoints and closes the log.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("checkpoint before close failed")
	}
	return db.conn.Close()
}

// Ping is the readiness check for the log.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("exposure log is closed")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint folds the DuckDB WAL into the database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// withQueryTimeout bounds ctx by queryTimeout unless it already has a
// deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func closeWithLog(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		logging.Warn().Str("type", what).Err(err).Msg("close failed")
	}
}

// rollbackQuietly is deferred after BeginTx; after Commit it is a no-op.
func rollbackQuietly(tx *sql.Tx) {
	_ = tx.Rollback()
}
