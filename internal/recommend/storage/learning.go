// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// LoadLearningState returns the stored state and whether it existed.
// Bounds are not checked here; the exploration controller clamps on read.
func (s *Store) LoadLearningState(ctx context.Context, userID int) (recommend.LearningState, bool, error) {
	if err := ctx.Err(); err != nil {
		return recommend.LearningState{}, false, err
	}

	var (
		state recommend.LearningState
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		state, found, err = getJSON[recommend.LearningState](txn, learnKey(userID))
		return err
	})
	metrics.RecordStoreOperation("load_learning_state", err)
	if err != nil {
		return recommend.LearningState{}, false, storeError("load learning state", err)
	}
	return state, found, nil
}

// SaveLearningState upserts the exploration state and every transition in
// one transaction.
func (s *Store) SaveLearningState(ctx context.Context, state recommend.LearningState) error {
	if state.UserID != state.Exploration.UserID {
		return fmt.Errorf("save learning state: %w: user %d carries exploration state for user %d",
			recommend.ErrInvalidState, state.UserID, state.Exploration.UserID)
	}

	data, err := encode(state, s.now())
	if err != nil {
		return fmt.Errorf("encode learning state: %w", err)
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(learnKey(state.UserID), data)
	})
	metrics.RecordStoreOperation("save_learning_state", err)
	return storeError("save learning state", err)
}

// CommitLearning stores the rated records and the learning state in one
// transaction. Either both are written or neither is.
//
//nolint:gocritic // hugeParam: state passed by value like SaveLearningState
func (s *Store) CommitLearning(ctx context.Context, userID int, records []recommend.WatchRecord, state recommend.LearningState) error {
	if state.UserID != userID || state.Exploration.UserID != userID {
		return fmt.Errorf("commit learning: %w: user %d carries state for user %d/%d",
			recommend.ErrInvalidState, userID, state.UserID, state.Exploration.UserID)
	}

	now := s.now()
	data, err := encode(state, now)
	if err != nil {
		return fmt.Errorf("encode learning state: %w", err)
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := putWatches(txn, userID, records, now); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return txn.Set(learnKey(userID), data)
	})
	metrics.RecordStoreOperation("commit_learning", err)
	return storeError("commit learning", err)
}

// SaveProfileSnapshot stores a derived profile for inspection and warm starts.
func (s *Store) SaveProfileSnapshot(ctx context.Context, p *recommend.TasteProfile) error {
	if p == nil {
		return nil
	}
	data, err := encode(p, s.now())
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.UserID), data)
	})
	metrics.RecordStoreOperation("save_profile", err)
	return storeError("save profile", err)
}

// ProfileSnapshot returns the last stored profile, or nil when none exists.
func (s *Store) ProfileSnapshot(ctx context.Context, userID int) (*recommend.TasteProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		p     *recommend.TasteProfile
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		p, found, err = getJSON[*recommend.TasteProfile](txn, profileKey(userID))
		return err
	})
	metrics.RecordStoreOperation("load_profile", err)
	if err != nil {
		return nil, storeError("load profile", err)
	}
	if !found {
		return nil, nil
	}
	return p, nil
}
