// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// schemaVersion is written into every value envelope.
const schemaVersion = 1

// maxConflictRetries bounds retries of transactions that hit badger.ErrConflict.
const maxConflictRetries = 3

// Key prefixes for BadgerDB storage
const (
	watchKeyPrefix   = "watch:"
	learnKeyPrefix   = "learn:"
	profileKeyPrefix = "profile:"
)

// Options configures Open.
type Options struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs BadgerDB without touching disk.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Store implements recommend.HistoryStore on BadgerDB.
type Store struct {
	db     *badger.DB
	ownsDB bool
	now    func() time.Time
}

var _ recommend.HistoryStore = (*Store)(nil)

// Open opens (or creates) a BadgerDB-backed store.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.Logger = newBadgerLogger(logging.WithComponent("badger"))

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("learning store opened")

	return &Store{db: db, ownsDB: true, now: time.Now}, nil
}

// New wraps an already open database. Close leaves db open.
func New(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database when the store opened it. Closing
// twice is a no-op.
func (s *Store) Close() error {
	if !s.ownsDB || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// Ping reports recommend.ErrStoreUnavailable once the database is closed.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return recommend.ErrStoreUnavailable
	}
	return nil
}

// RunValueLogGC runs value log garbage collection until nothing is left to
// rewrite. It reports whether any file was rewritten.
func (s *Store) RunValueLogGC(discardRatio float64) (bool, error) {
	rewritten := false
	for {
		err := s.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		// In-memory databases have no value log.
		if errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			metrics.StoreGCRuns.WithLabelValues("error").Inc()
			return rewritten, fmt.Errorf("run value log GC: %w", err)
		}
		rewritten = true
	}

	result := "nothing"
	if rewritten {
		result = "rewritten"
	}
	metrics.StoreGCRuns.WithLabelValues(result).Inc()
	return rewritten, nil
}

// envelope wraps stored values with a schema version.
type envelope[T any] struct {
	Version int       `json:"v"`
	SavedAt time.Time `json:"saved_at"`
	Data    T         `json:"data"`
}

func encode[T any](data T, now time.Time) ([]byte, error) {
	return json.Marshal(envelope[T]{Version: schemaVersion, SavedAt: now.UTC(), Data: data})
}

func decode[T any](val []byte) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal(val, &env); err != nil {
		var zero T
		return zero, err
	}
	if env.Version != schemaVersion {
		var zero T
		return zero, fmt.Errorf("unsupported schema version %d", env.Version)
	}
	return env.Data, nil
}

// getJSON reads and decodes one key. found is false when the key is absent.
func getJSON[T any](txn *badger.Txn, key []byte) (value T, found bool, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	err = item.Value(func(val []byte) error {
		v, derr := decode[T](val)
		if derr != nil {
			return fmt.Errorf("decode %s: %w", key, derr)
		}
		value = v
		return nil
	})
	return value, err == nil, err
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// storeError wraps a BadgerDB failure so callers can match ErrStoreUnavailable.
// Context errors pass through unchanged.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, recommend.ErrStoreUnavailable, err)
}

func watchPrefix(userID int) []byte {
	return []byte(fmt.Sprintf("%s%d:", watchKeyPrefix, userID))
}

func watchKey(userID, itemID int) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", watchKeyPrefix, userID, itemID))
}

func learnKey(userID int) []byte {
	return []byte(fmt.Sprintf("%s%d", learnKeyPrefix, userID))
}

func profileKey(userID int) []byte {
	return []byte(fmt.Sprintf("%s%d", profileKeyPrefix, userID))
}

// badgerLogger routes BadgerDB's internal logging into zerolog. Badger is
// chatty at info level, so info is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

//nolint:gocritic // hugeParam: zerolog.Logger is designed to be passed by value
func newBadgerLogger(l zerolog.Logger) *badgerLogger {
	return &badgerLogger{log: l}
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
