// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/marquee/internal/recommend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(f float64) *float64 { return &f }

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func watch(item int, minutes int, rating *float64) recommend.WatchRecord {
	return recommend.WatchRecord{
		ItemID:    item,
		Title:     "film",
		Rating:    rating,
		WatchedAt: t0.Add(time.Duration(minutes) * time.Minute),
		Metadata:  &recommend.ItemMetadata{Genres: []string{"Drama"}},
	}
}

func TestWatchHistory_Empty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.WatchHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("WatchHistory: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestRecordWatches_OrderedOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordWatches(ctx, 7, []recommend.WatchRecord{
		watch(30, 30, ptr(4)),
		watch(10, 10, nil),
		watch(20, 20, ptr(2)),
	}); err != nil {
		t.Fatalf("RecordWatches: %v", err)
	}

	got, err := s.WatchHistory(ctx, 7)
	if err != nil {
		t.Fatalf("WatchHistory: %v", err)
	}
	want := []int{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ItemID != id {
			t.Errorf("record %d = item %d, want %d", i, got[i].ItemID, id)
		}
	}
	if got[0].Metadata == nil || got[0].Metadata.PrimaryGenre() != "Drama" {
		t.Errorf("metadata not round-tripped: %+v", got[0].Metadata)
	}
}

func TestRecordWatches_UsersAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// user 7 must not see user 70's keys even though "watch:7" prefixes "watch:70"
	if err := s.RecordWatches(ctx, 7, []recommend.WatchRecord{watch(1, 1, nil)}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordWatches(ctx, 70, []recommend.WatchRecord{watch(2, 2, nil), watch(3, 3, nil)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.WatchHistory(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ItemID != 1 {
		t.Errorf("user 7 history = %+v, want only item 1", got)
	}
}

func TestRecordWatches_Rewatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordWatches(ctx, 1, []recommend.WatchRecord{watch(5, 0, ptr(3))}); err != nil {
		t.Fatal(err)
	}
	again := watch(5, 60, ptr(4.5))
	again.Metadata = nil
	if err := s.RecordWatches(ctx, 1, []recommend.WatchRecord{again}); err != nil {
		t.Fatal(err)
	}

	got, err := s.WatchHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	rec := got[0]
	if rec.RewatchCount != 1 {
		t.Errorf("RewatchCount = %d, want 1", rec.RewatchCount)
	}
	if rec.RatingValue() != 4.5 {
		t.Errorf("Rating = %v, want 4.5", rec.RatingValue())
	}
	if !rec.WatchedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("WatchedAt = %v, want latest", rec.WatchedAt)
	}
	if rec.Metadata == nil {
		t.Error("stored metadata should be kept when the rewatch has none")
	}
}

func TestRecordWatches_DuplicateInOneBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordWatches(ctx, 1, []recommend.WatchRecord{watch(5, 0, nil), watch(5, 10, nil)}); err != nil {
		t.Fatal(err)
	}
	got, err := s.WatchHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RewatchCount != 1 {
		t.Errorf("history = %+v, want one record with one rewatch", got)
	}
}

func TestMergeWatch(t *testing.T) {
	stored := watch(1, 30, ptr(2))
	stored.Liked = true
	stored.RewatchCount = 2

	incoming := watch(1, 10, nil) // older than stored
	incoming.RewatchCount = 1

	merged := recommend.MergeWatch(stored, incoming)
	if merged.RewatchCount != 4 {
		t.Errorf("RewatchCount = %d, want 4", merged.RewatchCount)
	}
	if !merged.WatchedAt.Equal(stored.WatchedAt) {
		t.Error("older incoming watch must not move WatchedAt back")
	}
	if merged.RatingValue() != 2 {
		t.Errorf("rating = %v, want stored 2", merged.RatingValue())
	}
	if !merged.Liked {
		t.Error("liked flag must be kept")
	}
}

func TestMergeWatch_RewatchCounting(t *testing.T) {
	stored := watch(1, 30, ptr(2))
	stored.RewatchCount = 1

	tests := []struct {
		name        string
		watchedAt   time.Time
		wantRewatch int
		wantAt      time.Time
	}{
		{"same watch time is a rating update", stored.WatchedAt, 1, stored.WatchedAt},
		{"no watch time is a rating update", time.Time{}, 1, stored.WatchedAt},
		{"later watch time is a rewatch", stored.WatchedAt.Add(time.Hour), 2, stored.WatchedAt.Add(time.Hour)},
		{"earlier watch time is a rewatch", stored.WatchedAt.Add(-time.Hour), 2, stored.WatchedAt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incoming := recommend.WatchRecord{ItemID: 1, Rating: ptr(5), WatchedAt: tt.watchedAt}
			merged := recommend.MergeWatch(stored, incoming)
			if merged.RewatchCount != tt.wantRewatch {
				t.Errorf("RewatchCount = %d, want %d", merged.RewatchCount, tt.wantRewatch)
			}
			if !merged.WatchedAt.Equal(tt.wantAt) {
				t.Errorf("WatchedAt = %v, want %v", merged.WatchedAt, tt.wantAt)
			}
			if merged.RatingValue() != 5 {
				t.Errorf("rating = %v, want 5", merged.RatingValue())
			}
		})
	}
}

func TestRecordWatches_RatingUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := watch(5, 0, ptr(3))
	if err := s.RecordWatches(ctx, 1, []recommend.WatchRecord{first}); err != nil {
		t.Fatal(err)
	}
	rerated := first
	rerated.Rating = ptr(1)
	if err := s.RecordWatches(ctx, 1, []recommend.WatchRecord{rerated}); err != nil {
		t.Fatal(err)
	}

	got, err := s.WatchHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RewatchCount != 0 || got[0].RatingValue() != 1 {
		t.Errorf("history = %+v, want one record rated 1 with no rewatch", got)
	}
}

func TestCommitLearning_WritesHistoryAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := recommend.LearningState{
		UserID:      6,
		Exploration: recommend.ExplorationState{UserID: 6, ExplorationRate: 0.2},
	}
	if err := s.CommitLearning(ctx, 6, []recommend.WatchRecord{watch(1, 1, ptr(4)), watch(2, 2, nil)}, state); err != nil {
		t.Fatalf("CommitLearning: %v", err)
	}

	history, err := s.WatchHistory(ctx, 6)
	if err != nil || len(history) != 2 {
		t.Fatalf("history = %d records, err %v; want 2", len(history), err)
	}
	got, found, err := s.LoadLearningState(ctx, 6)
	if err != nil || !found {
		t.Fatalf("LoadLearningState: found %v, err %v", found, err)
	}
	if got.Exploration.ExplorationRate != 0.2 {
		t.Errorf("rate = %v, want 0.2", got.Exploration.ExplorationRate)
	}

	// State alone, as after a feedback-only update.
	state.Exploration.ExplorationRate = 0.18
	if err := s.CommitLearning(ctx, 6, nil, state); err != nil {
		t.Fatalf("CommitLearning without records: %v", err)
	}
	got, _, _ = s.LoadLearningState(ctx, 6)
	if got.Exploration.ExplorationRate != 0.18 {
		t.Errorf("rate = %v, want 0.18", got.Exploration.ExplorationRate)
	}
}

func TestCommitLearning_FailureWritesNothing(t *testing.T) {
	const user = 8
	valid := recommend.LearningState{
		UserID:      user,
		Exploration: recommend.ExplorationState{UserID: user, ExplorationRate: 0.15},
	}

	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Store) context.Context
		state   recommend.LearningState
		wantErr error
	}{
		{
			name: "cancelled context",
			setup: func(*testing.T, *Store) context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			state:   valid,
			wantErr: context.Canceled,
		},
		{
			name:    "state for another user",
			setup:   func(*testing.T, *Store) context.Context { return context.Background() },
			state:   recommend.LearningState{UserID: user, Exploration: recommend.ExplorationState{UserID: user + 1}},
			wantErr: recommend.ErrInvalidState,
		},
		{
			// The second record cannot be merged after the first is staged.
			name: "failure after the first record",
			setup: func(t *testing.T, s *Store) context.Context {
				t.Helper()
				err := s.db.Update(func(txn *badger.Txn) error {
					return txn.Set(watchKey(user, 2), []byte("not json"))
				})
				if err != nil {
					t.Fatal(err)
				}
				return context.Background()
			},
			state:   valid,
			wantErr: recommend.ErrStoreUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ctx := tt.setup(t, s)

			records := []recommend.WatchRecord{watch(1, 1, ptr(4)), watch(2, 2, ptr(3))}
			err := s.CommitLearning(ctx, user, records, tt.state)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}

			err = s.db.View(func(txn *badger.Txn) error {
				_, gerr := txn.Get(watchKey(user, 1))
				return gerr
			})
			if !errors.Is(err, badger.ErrKeyNotFound) {
				t.Errorf("watch record written by failed commit: %v", err)
			}
			if _, found, err := s.LoadLearningState(context.Background(), user); err != nil || found {
				t.Errorf("learning state written by failed commit: found %v, err %v", found, err)
			}
		})
	}
}

func TestLearningState_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.LoadLearningState(ctx, 3); err != nil || found {
		t.Fatalf("LoadLearningState on empty store = found %v, err %v", found, err)
	}

	state := recommend.LearningState{
		UserID: 3,
		Exploration: recommend.ExplorationState{
			UserID:                3,
			ExplorationRate:       0.2,
			ExploratoryItemsRated: 12,
			ExploratoryAvgRating:  3.9,
			UpdatedAt:             t0,
		},
		Transitions: []recommend.GenreTransition{
			{From: "Action", To: "Comedy", SuccessCount: 2, TotalCount: 3},
		},
	}
	if err := s.SaveLearningState(ctx, state); err != nil {
		t.Fatalf("SaveLearningState: %v", err)
	}

	got, found, err := s.LoadLearningState(ctx, 3)
	if err != nil || !found {
		t.Fatalf("LoadLearningState = found %v, err %v", found, err)
	}
	if got.Exploration.ExplorationRate != 0.2 || got.Exploration.ExploratoryItemsRated != 12 {
		t.Errorf("exploration state = %+v", got.Exploration)
	}
	if len(got.Transitions) != 1 || got.Transitions[0].SuccessCount != 2 {
		t.Errorf("transitions = %+v", got.Transitions)
	}
}

func TestSaveLearningState_RejectsMismatchedUser(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveLearningState(context.Background(), recommend.LearningState{
		UserID:      1,
		Exploration: recommend.ExplorationState{UserID: 2},
	})
	if !errors.Is(err, recommend.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestSaveLearningState_CancelledContextWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveLearningState(ctx, recommend.LearningState{
		UserID:      4,
		Exploration: recommend.ExplorationState{UserID: 4, ExplorationRate: 0.1},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	_, found, err := s.LoadLearningState(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("cancelled save must not write state")
	}
}

// Concurrent writers to one user's learning key must leave one complete
// state behind, never a mix of two.
func TestSaveLearningState_ConcurrentWritersAreAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transitions := make([]recommend.GenreTransition, i)
			for j := range transitions {
				transitions[j] = recommend.GenreTransition{From: "A", To: "B", SuccessCount: i, TotalCount: i}
			}
			_ = s.SaveLearningState(ctx, recommend.LearningState{
				UserID:      9,
				Exploration: recommend.ExplorationState{UserID: 9, ExploratoryItemsRated: i},
				Transitions: transitions,
			})
		}()
	}
	wg.Wait()

	got, found, err := s.LoadLearningState(ctx, 9)
	if err != nil || !found {
		t.Fatalf("LoadLearningState = found %v, err %v", found, err)
	}
	n := got.Exploration.ExploratoryItemsRated
	if len(got.Transitions) != n {
		t.Fatalf("state mixes writers: %d transitions for writer %d", len(got.Transitions), n)
	}
	for _, tr := range got.Transitions {
		if tr.SuccessCount != n {
			t.Errorf("transition from writer %d in state of writer %d", tr.SuccessCount, n)
		}
	}
}

func TestProfileSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.ProfileSnapshot(ctx, 5)
	if err != nil || p != nil {
		t.Fatalf("ProfileSnapshot on empty store = %v, %v", p, err)
	}

	want := &recommend.TasteProfile{
		UserID:      5,
		TopGenres:   []recommend.GenreWeight{{Genre: "Drama", Weight: 12, Count: 4}},
		AvoidGenres: []string{"Horror"},
		BuiltAt:     t0,
	}
	if err := s.SaveProfileSnapshot(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.ProfileSnapshot(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got.TopGenres) != 1 || got.TopGenres[0].Genre != "Drama" || got.AvoidGenres[0] != "Horror" {
		t.Errorf("ProfileSnapshot = %+v", got)
	}
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	if _, err := decode[recommend.LearningState]([]byte(`{"v":99,"data":{}}`)); err == nil {
		t.Error("expected schema version error")
	}
	if _, err := decode[recommend.LearningState]([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestCorruptValueIsStoreError(t *testing.T) {
	s := newTestStore(t)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(learnKey(11), []byte("garbage"))
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = s.LoadLearningState(context.Background(), 11)
	if !errors.Is(err, recommend.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestRunValueLogGC_InMemory(t *testing.T) {
	s := newTestStore(t)
	rewritten, err := s.RunValueLogGC(0.5)
	if err != nil {
		t.Fatalf("RunValueLogGC: %v", err)
	}
	if rewritten {
		t.Error("in-memory store has nothing to rewrite")
	}
}

func TestNew_DoesNotCloseSharedDB(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New(db)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if db.IsClosed() {
		t.Error("New must not take ownership of db")
	}
}

func TestPing(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, recommend.ErrStoreUnavailable) {
		t.Errorf("Ping after close = %v, want ErrStoreUnavailable", err)
	}
}
