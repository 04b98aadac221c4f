// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/recommend"
)

// testDBSemaphore serializes DuckDB tests; concurrent CGO connections from
// many tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func exposure(id string, user, item int, shownAt time.Time, level recommend.ConsensusLevel) recommend.SuggestionExposure {
	return recommend.SuggestionExposure{
		ID:             id,
		RequestID:      "req-1",
		UserID:         user,
		ItemID:         item,
		ShownAt:        shownAt,
		BaseScore:      0.75,
		ConsensusLevel: level,
		Sources:        []string{"tmdb", "trakt"},
		MMRLambda:      0.3,
		DiversityRank:  1,
		Exploratory:    item%2 == 0,
	}
}

func TestExposures_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := []recommend.SuggestionExposure{
		exposure("b", 7, 102, base.Add(time.Minute), recommend.ConsensusHigh),
		exposure("a", 7, 101, base, recommend.ConsensusMedium),
		exposure("c", 8, 103, base, recommend.ConsensusLow),
	}
	if err := db.RecordExposures(ctx, in); err != nil {
		t.Fatalf("RecordExposures: %v", err)
	}

	got, err := db.Exposures(ctx, 7, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Exposures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d exposures, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = %s,%s, want a,b", got[0].ID, got[1].ID)
	}
	e := got[1]
	if e.ConsensusLevel != recommend.ConsensusHigh {
		t.Errorf("level = %v, want high", e.ConsensusLevel)
	}
	if len(e.Sources) != 2 || e.Sources[0] != "tmdb" {
		t.Errorf("sources = %v", e.Sources)
	}
	if !e.ShownAt.Equal(base.Add(time.Minute)) {
		t.Errorf("shown_at = %v", e.ShownAt)
	}
	if e.MMRLambda != 0.3 || e.BaseScore != 0.75 || !e.Exploratory {
		t.Errorf("exposure fields not preserved: %+v", e)
	}
}

func TestExposures_SinceFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordExposures(ctx, []recommend.SuggestionExposure{
		exposure("old", 1, 1, base.Add(-48*time.Hour), recommend.ConsensusLow),
		exposure("new", 1, 2, base, recommend.ConsensusLow),
	}); err != nil {
		t.Fatal(err)
	}
	got, err := db.Exposures(ctx, 1, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("Exposures since = %+v, want only new", got)
	}
}

func TestRecordExposures_AssignsIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordExposures(ctx, []recommend.SuggestionExposure{
		exposure("", 2, 1, base, recommend.ConsensusLow),
		exposure("", 2, 2, base, recommend.ConsensusLow),
	}); err != nil {
		t.Fatal(err)
	}
	got, err := db.Exposures(ctx, 2, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID == "" || got[0].ID == got[1].ID {
		t.Errorf("expected two distinct generated IDs, got %+v", got)
	}
}

func TestRecordExposures_DuplicateIDRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.RecordExposures(ctx, []recommend.SuggestionExposure{
		exposure("dup", 3, 1, base, recommend.ConsensusLow),
		exposure("dup", 3, 2, base, recommend.ConsensusLow),
	})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	counts, err := db.RecordCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[exposuresTable] != 0 {
		t.Errorf("failed batch left %d rows", counts[exposuresTable])
	}
}

func TestFeedback_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := []recommend.Feedback{
		{UserID: 7, ItemID: 101, Polarity: recommend.PolarityNegative, At: base.Add(2 * time.Minute)},
		{UserID: 7, ItemID: 102, Polarity: recommend.PolarityPositive, At: base.Add(time.Minute)},
		{UserID: 9, ItemID: 101, Polarity: recommend.PolarityPositive, At: base},
	}
	if err := db.RecordFeedback(ctx, in); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}

	got, err := db.Feedback(ctx, 7, base)
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d feedback rows, want 2", len(got))
	}
	if got[0].ItemID != 102 || got[0].Polarity != recommend.PolarityPositive {
		t.Errorf("first = %+v, want item 102 positive", got[0])
	}
	if got[1].ItemID != 101 || got[1].Polarity != recommend.PolarityNegative {
		t.Errorf("second = %+v, want item 101 negative", got[1])
	}
}

func TestAcceptanceByLevel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordExposures(ctx, []recommend.SuggestionExposure{
		exposure("h1", 1, 1, base, recommend.ConsensusHigh),
		exposure("h2", 1, 2, base, recommend.ConsensusHigh),
		exposure("l1", 1, 3, base, recommend.ConsensusLow),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordFeedback(ctx, []recommend.Feedback{
		{UserID: 1, ItemID: 1, Polarity: recommend.PolarityPositive, At: base.Add(time.Minute)},
		{UserID: 1, ItemID: 3, Polarity: recommend.PolarityNegative, At: base.Add(time.Minute)},
		// Before the exposure: not attributed
		{UserID: 1, ItemID: 2, Polarity: recommend.PolarityPositive, At: base.Add(-time.Minute)},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := db.AcceptanceByLevel(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("AcceptanceByLevel: %v", err)
	}
	byLevel := map[recommend.ConsensusLevel]AcceptanceSummary{}
	for _, s := range got {
		byLevel[s.Level] = s
	}
	if h := byLevel[recommend.ConsensusHigh]; h.Exposures != 2 || h.Positive != 1 || h.Negative != 0 {
		t.Errorf("high = %+v, want 2 exposures, 1 positive", h)
	}
	if l := byLevel[recommend.ConsensusLow]; l.Exposures != 1 || l.Negative != 1 {
		t.Errorf("low = %+v, want 1 exposure, 1 negative", l)
	}
}

func TestEmptyBatchesAreNoops(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.RecordExposures(ctx, nil); err != nil {
		t.Error(err)
	}
	if err := db.RecordFeedback(ctx, nil); err != nil {
		t.Error(err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Error(err)
	}
}
