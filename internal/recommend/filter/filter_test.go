// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package filter

import (
	"math"
	"testing"

	"github.com/tomtom215/marquee/internal/recommend"
)

func testProfile() *recommend.TasteProfile {
	return &recommend.TasteProfile{
		TopGenres: []recommend.GenreWeight{{Genre: "Action"}},
		SubgenrePatterns: map[string]map[string]recommend.SubgenrePattern{
			"Action": {
				"superhero": {Genre: "Action", Subgenre: "superhero", Occurrences: 3, LikeRate: 0, Status: recommend.SubgenreAvoided},
				"heist":     {Genre: "Action", Subgenre: "heist", Occurrences: 4, LikeRate: 1, Status: recommend.SubgenrePreferred},
			},
		},
		CrossGenrePatterns: []recommend.CrossGenrePattern{{
			Pair:           recommend.NewGenrePair("Action", "Science Fiction"),
			SharedKeywords: []string{"time travel"},
			ExampleItems:   []string{"Looper"},
			Strength:       0.8,
		}},
		Runtime:     recommend.RuntimeStats{Samples: 10, Mean: 120, StdDev: 10},
		NicheCounts: map[string]int{"anime": 0, "documentary": 2, "stand-up": 0, "concert film": 0},
	}
}

func candidate(id int, runtime int, genres []string, keywords ...string) recommend.ScoredCandidate {
	return recommend.ScoredCandidate{
		Candidate: recommend.Candidate{
			ItemID: id,
			Metadata: &recommend.ItemMetadata{
				Genres:         genres,
				Keywords:       keywords,
				RuntimeMinutes: runtime,
			},
		},
		Consensus: 0.5,
		Score:     0.5,
	}
}

func TestEvaluate(t *testing.T) {
	cfg := recommend.DefaultConfig()
	f := New(cfg.Filter, cfg.Taxonomy)
	p := testProfile()

	tests := []struct {
		name      string
		cand      recommend.ScoredCandidate
		want      Outcome
		wantCode  recommend.ReasonCode
		wantBoost float64
	}{
		{
			name:     "avoided subgenre rejected",
			cand:     candidate(1, 120, []string{"Action"}, "superhero"),
			want:     Reject,
			wantCode: recommend.ReasonAvoidedSubgenre,
		},
		{
			name:     "avoided subgenre beats cross-genre boost",
			cand:     candidate(2, 120, []string{"Action", "Science Fiction"}, "superhero", "time travel"),
			want:     Reject,
			wantCode: recommend.ReasonAvoidedSubgenre,
		},
		{
			name:     "niche with zero exposure rejected",
			cand:     candidate(3, 120, []string{"Animation"}, "anime"),
			want:     Reject,
			wantCode: recommend.ReasonNicheIncompatible,
		},
		{
			name: "niche with prior exposure passes",
			cand: candidate(4, 120, []string{"Documentary"}),
			want: Pass,
		},
		{
			name:     "runtime far outside range rejected",
			cand:     candidate(5, 200, []string{"Drama"}),
			want:     Reject,
			wantCode: recommend.ReasonRuntimeMismatch,
		},
		{
			name: "unknown runtime passes",
			cand: candidate(6, 0, []string{"Drama"}),
			want: Pass,
		},
		{
			name:      "cross-genre boost near runtime limit",
			cand:      candidate(7, 149, []string{"Science Fiction", "Action"}, "time travel"),
			want:      Boost,
			wantCode:  recommend.ReasonCrossGenre,
			wantBoost: 0.1 * 0.8,
		},
		{
			name: "cross-genre pair without shared keyword passes",
			cand: candidate(8, 120, []string{"Science Fiction", "Action"}, "romance"),
			want: Pass,
		},
		{
			name:      "preferred subgenre boost",
			cand:      candidate(9, 120, []string{"Action"}, "heist"),
			want:      Boost,
			wantCode:  recommend.ReasonPreferredSubgenre,
			wantBoost: 0.05,
		},
		{
			name: "missing metadata passes",
			cand: recommend.ScoredCandidate{Candidate: recommend.Candidate{ItemID: 10}},
			want: Pass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.Evaluate(&tt.cand, p)
			if d.Outcome != tt.want {
				t.Fatalf("Outcome = %s, want %s (reasons %+v)", d.Outcome, tt.want, d.Reasons)
			}
			if tt.wantCode != "" && (len(d.Reasons) == 0 || d.Reasons[0].Code != tt.wantCode) {
				t.Errorf("Reasons = %+v, want code %s", d.Reasons, tt.wantCode)
			}
			if math.Abs(d.Boost-tt.wantBoost) > 1e-9 {
				t.Errorf("Boost = %f, want %f", d.Boost, tt.wantBoost)
			}
		})
	}
}

func TestEvaluate_SuperheroReasonCitesClassification(t *testing.T) {
	cfg := recommend.DefaultConfig()
	f := New(cfg.Filter, cfg.Taxonomy)

	c := candidate(1, 0, []string{"Action"}, "superhero")
	d := f.Evaluate(&c, testProfile())

	if d.Outcome != Reject {
		t.Fatalf("Outcome = %s, want reject", d.Outcome)
	}
	r := d.Reasons[0]
	if r.Genre != "Action" || r.Subgenre != "superhero" {
		t.Errorf("reason = %+v, want Action/superhero", r)
	}
}

func TestEvaluate_DisabledChecks(t *testing.T) {
	cfg := recommend.DefaultConfig()
	cfg.Filter.NicheFiltering = false
	cfg.Filter.RuntimeFiltering = false
	f := New(cfg.Filter, cfg.Taxonomy)
	p := testProfile()

	anime := candidate(1, 120, []string{"Animation"}, "anime")
	if d := f.Evaluate(&anime, p); d.Outcome != Pass {
		t.Errorf("anime Outcome = %s, want pass with niche filtering disabled", d.Outcome)
	}
	long := candidate(2, 300, []string{"Drama"})
	if d := f.Evaluate(&long, p); d.Outcome != Pass {
		t.Errorf("long Outcome = %s, want pass with runtime filtering disabled", d.Outcome)
	}
}

func TestEvaluate_RuntimeNeedsSamples(t *testing.T) {
	cfg := recommend.DefaultConfig()
	f := New(cfg.Filter, cfg.Taxonomy)
	p := testProfile()
	p.Runtime.Samples = 2

	c := candidate(1, 300, []string{"Drama"})
	if d := f.Evaluate(&c, p); d.Outcome != Pass {
		t.Errorf("Outcome = %s, want pass with thin runtime history", d.Outcome)
	}
}

func TestApply(t *testing.T) {
	cfg := recommend.DefaultConfig()
	f := New(cfg.Filter, cfg.Taxonomy)

	items := []recommend.ScoredCandidate{
		candidate(1, 120, []string{"Action"}, "superhero"),
		candidate(2, 120, []string{"Action"}, "heist"),
		candidate(3, 120, []string{"Drama"}),
	}

	out, events := f.Apply(items, testProfile())

	if len(out) != 2 || out[0].ItemID != 2 || out[1].ItemID != 3 {
		t.Fatalf("out = %+v, want items 2 and 3", out)
	}
	if out[0].Boost != 0.05 {
		t.Errorf("Boost = %f, want 0.05", out[0].Boost)
	}
	if out[0].Score != 0.5 {
		t.Errorf("Score changed to %f; boost budget is applied by the caller", out[0].Score)
	}
	if events.Count(recommend.EventCandidateFiltered) != 1 {
		t.Errorf("events = %+v", events)
	}
	if events[0].Reason == nil || events[0].Reason.Code != recommend.ReasonAvoidedSubgenre {
		t.Errorf("event reason = %+v", events[0].Reason)
	}
}
