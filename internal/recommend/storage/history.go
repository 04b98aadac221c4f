// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// WatchHistory returns the user's watch records, oldest first.
func (s *Store) WatchHistory(ctx context.Context, userID int) ([]recommend.WatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []recommend.WatchRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = watchPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rec, derr := decode[recommend.WatchRecord](val)
				if derr != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), derr)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordStoreOperation("watch_history", err)
	if err != nil {
		return nil, storeError("watch history", err)
	}

	recommend.SortWatchRecords(records)
	return records, nil
}

// RecordWatches ingests records in a single transaction. Re-ingesting a known
// item with a different WatchedAt counts as a rewatch; re-ingesting it with
// the stored WatchedAt or none updates the rating only. See
// recommend.MergeWatch.
func (s *Store) RecordWatches(ctx context.Context, userID int, records []recommend.WatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now()
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putWatches(txn, userID, records, now)
	})
	metrics.RecordStoreOperation("record_watches", err)
	return storeError("record watches", err)
}

// putWatches merges records into the user's stored history within txn.
func putWatches(txn *badger.Txn, userID int, records []recommend.WatchRecord, now time.Time) error {
	for i := range records {
		incoming := records[i]
		key := watchKey(userID, incoming.ItemID)

		stored, found, err := getJSON[recommend.WatchRecord](txn, key)
		if err != nil {
			return err
		}
		merged := incoming
		if found {
			merged = recommend.MergeWatch(stored, incoming)
		}

		data, err := encode(merged, now)
		if err != nil {
			return fmt.Errorf("encode watch record: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set watch record: %w", err)
		}
	}
	return nil
}
