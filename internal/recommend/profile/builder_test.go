// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package profile

import (
	"math"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func rating(v float64) *float64 { return &v }

func film(id int, r *float64, genres []string, keywords ...string) recommend.WatchRecord {
	return recommend.WatchRecord{
		ItemID:    id,
		Rating:    r,
		WatchedAt: epoch.Add(time.Duration(id) * time.Hour),
		Metadata:  &recommend.ItemMetadata{Genres: genres, Keywords: keywords},
	}
}

func newTestBuilder() *Builder {
	cfg := recommend.DefaultConfig()
	return NewBuilder(cfg.Profile, cfg.Taxonomy)
}

func TestBuild_TopAndAvoidGenres(t *testing.T) {
	history := []recommend.WatchRecord{
		film(1, rating(5), []string{"Action"}),
		film(2, rating(4), []string{"Action", "Comedy"}),
		film(3, rating(3), []string{"Drama"}),
		film(4, rating(2), []string{"Horror"}),
		film(5, rating(1), []string{"Horror"}),
		film(6, rating(2), []string{"Horror"}),
		{ItemID: 7, Liked: true, WatchedAt: epoch.Add(7 * time.Hour), Metadata: &recommend.ItemMetadata{Genres: []string{"Animation"}}},
	}

	p, events := newTestBuilder().Build(42, history)

	if len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
	if p.UserID != 42 {
		t.Errorf("UserID = %d, want 42", p.UserID)
	}

	wantTop := []string{"Action", "Comedy", "Drama", "Animation"}
	got := p.GenreNames()
	if len(got) != len(wantTop) {
		t.Fatalf("TopGenres = %v, want %v", got, wantTop)
	}
	for i := range wantTop {
		if got[i] != wantTop[i] {
			t.Errorf("TopGenres[%d] = %s, want %s", i, got[i], wantTop[i])
		}
	}
	if p.TopGenres[0].Weight != 9 {
		t.Errorf("Action weight = %f, want 9", p.TopGenres[0].Weight)
	}

	if len(p.AvoidGenres) != 1 || p.AvoidGenres[0] != "Horror" {
		t.Errorf("AvoidGenres = %v, want [Horror]", p.AvoidGenres)
	}
	if p.IsTopGenre("Horror") {
		t.Error("avoided genre ranked as top genre")
	}
}

func TestBuild_TopGenresLimit(t *testing.T) {
	cfg := recommend.DefaultConfig()
	cfg.Profile.TopGenres = 2
	b := NewBuilder(cfg.Profile, cfg.Taxonomy)

	p, _ := b.Build(1, []recommend.WatchRecord{
		film(1, rating(5), []string{"Action"}),
		film(2, rating(4), []string{"Drama"}),
		film(3, rating(3), []string{"Comedy"}),
	})

	if len(p.TopGenres) != 2 {
		t.Fatalf("len(TopGenres) = %d, want 2", len(p.TopGenres))
	}
}

func TestBuild_AvoidNeedsMinimumOccurrences(t *testing.T) {
	p, _ := newTestBuilder().Build(1, []recommend.WatchRecord{
		film(1, rating(1), []string{"Horror"}),
		film(2, rating(1), []string{"Horror"}),
	})
	if len(p.AvoidGenres) != 0 {
		t.Errorf("AvoidGenres = %v, want none below minimum occurrences", p.AvoidGenres)
	}
}

func TestBuild_SubgenrePatterns(t *testing.T) {
	history := []recommend.WatchRecord{
		film(1, rating(1), []string{"Action"}, "superhero"),
		film(2, rating(1.5), []string{"Action"}, "superhero", "sequel"),
		film(3, rating(1), []string{"Action"}, "based on comic"),
		film(4, rating(5), []string{"Action"}, "heist"),
		film(5, rating(4.5), []string{"Action"}, "bank robbery"),
		film(6, rating(4), []string{"Action"}, "heist"),
	}

	p, _ := newTestBuilder().Build(1, history)

	superhero, ok := p.Subgenre("Action", "superhero")
	if !ok {
		t.Fatal("superhero pattern missing")
	}
	if superhero.Occurrences != 3 {
		t.Errorf("superhero occurrences = %d, want 3", superhero.Occurrences)
	}
	if superhero.LikeRate != 0 {
		t.Errorf("superhero LikeRate = %f, want 0", superhero.LikeRate)
	}
	if superhero.WatchFraction != 0.5 {
		t.Errorf("superhero WatchFraction = %f, want 0.5", superhero.WatchFraction)
	}
	if superhero.Status != recommend.SubgenreAvoided {
		t.Errorf("superhero status = %s, want avoided", superhero.Status)
	}

	heist, ok := p.Subgenre("Action", "heist")
	if !ok {
		t.Fatal("heist pattern missing")
	}
	if heist.Status != recommend.SubgenrePreferred {
		t.Errorf("heist status = %s, want preferred", heist.Status)
	}
}

func TestBuild_SubgenreNeutralWhenRare(t *testing.T) {
	history := []recommend.WatchRecord{film(1, rating(1), []string{"Action"}, "spy")}
	for i := 2; i <= 30; i++ {
		history = append(history, film(i, rating(3), []string{"Action"}, "explosion"))
	}

	p, _ := newTestBuilder().Build(1, history)

	spy, ok := p.Subgenre("Action", "spy")
	if !ok {
		t.Fatal("spy pattern missing")
	}
	if spy.Status != recommend.SubgenreNeutral {
		t.Errorf("spy status = %s, want neutral for a single occurrence", spy.Status)
	}
}

func TestBuild_MissingMetadataTolerated(t *testing.T) {
	history := []recommend.WatchRecord{
		film(1, rating(5), []string{"Action"}, "heist"),
		{ItemID: 2, Rating: rating(1), WatchedAt: epoch},
		{ItemID: 3, Rating: rating(1), WatchedAt: epoch, Metadata: &recommend.ItemMetadata{}},
	}

	p, events := newTestBuilder().Build(1, history)

	if p.MissingMetadata != 2 {
		t.Errorf("MissingMetadata = %d, want 2", p.MissingMetadata)
	}
	if p.FilmsAnalyzed != 1 {
		t.Errorf("FilmsAnalyzed = %d, want 1", p.FilmsAnalyzed)
	}
	if n := events.Count(recommend.EventMetadataMissing); n != 2 {
		t.Errorf("MetadataMissing events = %d, want 2", n)
	}
	if !p.IsTopGenre("Action") {
		t.Error("Action missing from top genres")
	}
}

func TestBuild_CrossGenrePatterns(t *testing.T) {
	sf := []string{"Science Fiction", "Action"}
	history := []recommend.WatchRecord{
		film(1, rating(4.5), sf, "time travel", "robot"),
		film(2, rating(4.5), sf, "time travel"),
		film(3, rating(4.5), sf, "time travel", "robot"),
		film(4, rating(2), []string{"Drama", "Romance"}, "wedding"),
		film(5, rating(2), []string{"Drama", "Romance"}, "wedding"),
		film(6, rating(2), []string{"Drama", "Romance"}, "wedding"),
	}
	history[0].Title = "First"
	history[2].Title = "Third"

	p, _ := newTestBuilder().Build(1, history)

	if len(p.CrossGenrePatterns) != 1 {
		t.Fatalf("CrossGenrePatterns = %+v, want 1 pattern", p.CrossGenrePatterns)
	}
	pat := p.CrossGenrePatterns[0]
	if pat.Pair.A != "Action" || pat.Pair.B != "Science Fiction" {
		t.Errorf("Pair = %+v, want Action/Science Fiction", pat.Pair)
	}
	if pat.Occurrences != 3 {
		t.Errorf("Occurrences = %d, want 3", pat.Occurrences)
	}
	if len(pat.SharedKeywords) < 2 || pat.SharedKeywords[0] != "time travel" || pat.SharedKeywords[1] != "robot" {
		t.Errorf("SharedKeywords = %v, want [time travel robot]", pat.SharedKeywords)
	}
	wantExamples := []string{"Third", "#2", "First"}
	for i, want := range wantExamples {
		if pat.ExampleItems[i] != want {
			t.Errorf("ExampleItems[%d] = %s, want %s", i, pat.ExampleItems[i], want)
		}
	}
	wantStrength := 4.5 / 5 * 0.3
	if math.Abs(pat.Strength-wantStrength) > 1e-9 {
		t.Errorf("Strength = %f, want %f", pat.Strength, wantStrength)
	}
}

func TestBuild_RuntimeNicheAndLastGenre(t *testing.T) {
	history := []recommend.WatchRecord{
		film(1, rating(4), []string{"Documentary"}),
		film(2, rating(4), []string{"Animation"}, "anime"),
		film(3, rating(4), []string{"Drama"}),
	}
	history[0].Metadata.RuntimeMinutes = 90
	history[1].Metadata.RuntimeMinutes = 110
	history[2].Metadata.RuntimeMinutes = 130

	p, _ := newTestBuilder().Build(1, history)

	if p.Runtime.Samples != 3 || p.Runtime.Min != 90 || p.Runtime.Max != 130 {
		t.Errorf("Runtime = %+v", p.Runtime)
	}
	if p.Runtime.Mean != 110 {
		t.Errorf("Runtime.Mean = %f, want 110", p.Runtime.Mean)
	}
	wantStd := math.Sqrt(800.0 / 3)
	if math.Abs(p.Runtime.StdDev-wantStd) > 1e-9 {
		t.Errorf("Runtime.StdDev = %f, want %f", p.Runtime.StdDev, wantStd)
	}

	if p.NicheCounts["documentary"] != 1 || p.NicheCounts["anime"] != 1 {
		t.Errorf("NicheCounts = %v", p.NicheCounts)
	}
	if n, ok := p.NicheCounts["stand-up"]; !ok || n != 0 {
		t.Errorf("stand-up niche = %d, %v; want 0, true", n, ok)
	}
	if p.LastGenre != "Drama" {
		t.Errorf("LastGenre = %s, want Drama", p.LastGenre)
	}
}

func TestBuild_DoesNotMutateHistory(t *testing.T) {
	history := []recommend.WatchRecord{
		film(2, rating(4), []string{"Drama"}),
		film(1, rating(4), []string{"Action"}),
	}

	newTestBuilder().Build(1, history)

	if history[0].ItemID != 2 {
		t.Error("Build reordered caller history")
	}
}

func TestFingerprint(t *testing.T) {
	a := []recommend.WatchRecord{film(1, rating(4), []string{"Drama"}, "trial")}
	b := []recommend.WatchRecord{film(1, rating(4), []string{"Drama"}, "trial")}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("equal histories fingerprint differently")
	}

	b[0].Rating = rating(3)
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("rating change did not change fingerprint")
	}

	c := []recommend.WatchRecord{film(1, nil, []string{"Drama"}, "trial")}
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("missing rating did not change fingerprint")
	}
}
