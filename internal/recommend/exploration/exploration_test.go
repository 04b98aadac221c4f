// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package exploration

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestController() *Controller {
	return NewController(recommend.DefaultConfig().Exploration)
}

func actionProfile() *recommend.TasteProfile {
	return &recommend.TasteProfile{
		TopGenres:   []recommend.GenreWeight{{Genre: "Action", Weight: 10}},
		AvoidGenres: []string{"Horror"},
	}
}

func meta(genres ...string) *recommend.ItemMetadata {
	return &recommend.ItemMetadata{Genres: genres}
}

func rated(id int, r float64, genres ...string) recommend.WatchRecord {
	return recommend.WatchRecord{
		ItemID:    id,
		Rating:    &r,
		WatchedAt: now.Add(time.Duration(id) * time.Minute),
		Metadata:  meta(genres...),
	}
}

func batchOf(records []recommend.WatchRecord) map[int]struct{} {
	out := make(map[int]struct{}, len(records))
	for _, r := range records {
		out[r.ItemID] = struct{}{}
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClassification(t *testing.T) {
	p := actionProfile()

	tests := []struct {
		name        string
		meta        *recommend.ItemMetadata
		comfort     bool
		avoid       bool
		exploratory bool
	}{
		{"top genre with another genre is comfort", meta("Action", "Science Fiction"), true, false, false},
		{"unrelated genre is exploratory", meta("Documentary"), false, false, true},
		{"avoided genre is a known avoid", meta("Horror"), false, true, false},
		{"avoided plus unrelated is not exploratory", meta("Horror", "Comedy"), false, true, false},
		{"missing metadata is neither", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComfortZone(tt.meta, p); got != tt.comfort {
				t.Errorf("IsComfortZone() = %v, want %v", got, tt.comfort)
			}
			if got := IsKnownAvoid(tt.meta, p); got != tt.avoid {
				t.Errorf("IsKnownAvoid() = %v, want %v", got, tt.avoid)
			}
			if got := IsExploratory(tt.meta, p); got != tt.exploratory {
				t.Errorf("IsExploratory() = %v, want %v", got, tt.exploratory)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	items := []recommend.ScoredCandidate{
		{Candidate: recommend.Candidate{ItemID: 1, Metadata: meta("Action")}},
		{Candidate: recommend.Candidate{ItemID: 2, Metadata: meta("Documentary")}},
		{Candidate: recommend.Candidate{ItemID: 3}},
	}

	if n := Classify(items, actionProfile()); n != 1 {
		t.Fatalf("Classify() = %d, want 1", n)
	}
	if items[0].Exploratory || !items[1].Exploratory || items[2].Exploratory {
		t.Errorf("flags = %v %v %v", items[0].Exploratory, items[1].Exploratory, items[2].Exploratory)
	}
	if len(items[1].Reasons) != 1 || items[1].Reasons[0].Code != recommend.ReasonExploration {
		t.Errorf("reasons = %+v", items[1].Reasons)
	}
}

func TestApplyBatch_LikedExplorationRaisesRate(t *testing.T) {
	c := newTestController()
	state := c.InitialState(1, now)

	var history []recommend.WatchRecord
	for i := 1; i <= 20; i++ {
		history = append(history, rated(i, 4.0, "Documentary"))
	}

	got, events := c.ApplyBatch(state, actionProfile(), history, batchOf(history), now)

	if !approx(got.ExplorationRate, 0.20) {
		t.Errorf("ExplorationRate = %f, want 0.20", got.ExplorationRate)
	}
	if got.ExploratoryItemsRated != 20 || !approx(got.ExploratoryAvgRating, 4.0) {
		t.Errorf("running mean = %d/%f, want 20/4.0", got.ExploratoryItemsRated, got.ExploratoryAvgRating)
	}
	if events.Count(recommend.EventExplorationUpdated) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestApplyBatch(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		rating   float64
		wantRate float64
	}{
		{"liked raises", 0.15, 3.5, 0.20},
		{"liked capped at max", 0.28, 5.0, 0.30},
		{"disliked lowers", 0.15, 2.0, 0.10},
		{"disliked floored at min", 0.07, 1.0, 0.05},
		{"neutral unchanged", 0.15, 3.2, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController()
			state := recommend.ExplorationState{UserID: 1, ExplorationRate: tt.rate}
			history := []recommend.WatchRecord{rated(1, tt.rating, "Documentary"), rated(2, tt.rating, "Western")}

			got, _ := c.ApplyBatch(state, actionProfile(), history, batchOf(history), now)
			if !approx(got.ExplorationRate, tt.wantRate) {
				t.Errorf("ExplorationRate = %f, want %f", got.ExplorationRate, tt.wantRate)
			}
		})
	}
}

func TestApplyBatch_ComfortAndAvoidIgnored(t *testing.T) {
	c := newTestController()
	state := c.InitialState(1, now)
	history := []recommend.WatchRecord{
		rated(1, 1.0, "Action", "Science Fiction"),
		rated(2, 1.0, "Horror"),
	}

	got, events := c.ApplyBatch(state, actionProfile(), history, batchOf(history), now)

	if got.ExplorationRate != state.ExplorationRate {
		t.Errorf("ExplorationRate = %f, want unchanged %f", got.ExplorationRate, state.ExplorationRate)
	}
	if got.ExploratoryItemsRated != 0 {
		t.Errorf("ExploratoryItemsRated = %d, want 0", got.ExploratoryItemsRated)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}

func TestApplyBatch_OnlyRecentWindow(t *testing.T) {
	cfg := recommend.DefaultConfig().Exploration
	cfg.RecentWindow = 2
	c := NewController(cfg)

	history := []recommend.WatchRecord{
		rated(1, 1.0, "Documentary"),
		rated(2, 1.0, "Documentary"),
		rated(3, 5.0, "Documentary"),
		rated(4, 4.0, "Western"),
	}

	got, _ := c.ApplyBatch(c.InitialState(1, now), actionProfile(), history, batchOf(history[2:]), now)
	if !approx(got.ExplorationRate, 0.20) {
		t.Errorf("ExplorationRate = %f, want 0.20 from the two most recent ratings", got.ExplorationRate)
	}
	if got.ExploratoryItemsRated != 2 || !approx(got.ExploratoryAvgRating, 4.5) {
		t.Errorf("running mean = %d/%f, want 2/4.5", got.ExploratoryItemsRated, got.ExploratoryAvgRating)
	}
}

func TestApplyBatch_CumulativeMean(t *testing.T) {
	c := newTestController()
	state := recommend.ExplorationState{UserID: 1, ExplorationRate: 0.15, ExploratoryItemsRated: 2, ExploratoryAvgRating: 2.0}

	history := []recommend.WatchRecord{rated(1, 2.0, "Documentary"), rated(2, 2.0, "Documentary"), rated(3, 5.0, "Western")}
	got, _ := c.ApplyBatch(state, actionProfile(), history, batchOf(history[2:]), now)

	if got.ExploratoryItemsRated != 3 || !approx(got.ExploratoryAvgRating, 3.0) {
		t.Errorf("running mean = %d/%f, want 3/3.0", got.ExploratoryItemsRated, got.ExploratoryAvgRating)
	}
}

func TestApplyBatch_UpdatedAt(t *testing.T) {
	earlier := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		history []recommend.WatchRecord
		batch   int // trailing records that belong to the batch
		want    time.Time
	}{
		{"rate raised", []recommend.WatchRecord{rated(1, 4.5, "Documentary")}, 1, now},
		{"neutral rating advances the mean", []recommend.WatchRecord{rated(1, 3.2, "Documentary")}, 1, now},
		{"comfort zone only", []recommend.WatchRecord{rated(1, 5, "Action")}, 1, earlier},
		{"neutral re-inspection", []recommend.WatchRecord{rated(1, 3.2, "Documentary"), rated(2, 5, "Action")}, 1, earlier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController()
			state := recommend.ExplorationState{UserID: 1, ExplorationRate: 0.15, UpdatedAt: earlier}

			got, _ := c.ApplyBatch(state, actionProfile(), tt.history, batchOf(tt.history[len(tt.history)-tt.batch:]), now)
			if !got.UpdatedAt.Equal(tt.want) {
				t.Errorf("UpdatedAt = %v, want %v (state %+v)", got.UpdatedAt, tt.want, got)
			}
			if tt.want.Equal(earlier) && got != state {
				t.Errorf("state changed without a new UpdatedAt: %+v", got)
			}
		})
	}
}

func TestApplyNegativeFeedback(t *testing.T) {
	c := newTestController()
	p := actionProfile()

	tests := []struct {
		name      string
		meta      *recommend.ItemMetadata
		wantApply bool
		wantRate  float64
	}{
		{"exploratory rejection penalized", meta("Documentary"), true, 0.13},
		{"known avoid exempt", meta("Horror"), false, 0.15},
		{"comfort zone exempt", meta("Action"), false, 0.15},
		{"missing metadata exempt", nil, false, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := c.InitialState(1, now)
			got, applied, ev := c.ApplyNegativeFeedback(state, 9, tt.meta, p, now)
			if applied != tt.wantApply {
				t.Errorf("applied = %v, want %v (event %+v)", applied, tt.wantApply, ev)
			}
			if !approx(got.ExplorationRate, tt.wantRate) {
				t.Errorf("ExplorationRate = %f, want %f", got.ExplorationRate, tt.wantRate)
			}
		})
	}
}

func TestApplyNegativeFeedback_Compounds(t *testing.T) {
	c := newTestController()
	state := c.InitialState(1, now)

	for i := 0; i < 10; i++ {
		state, _, _ = c.ApplyNegativeFeedback(state, i, meta("Documentary"), actionProfile(), now)
	}
	if !approx(state.ExplorationRate, 0.05) {
		t.Errorf("ExplorationRate = %f, want floored at 0.05", state.ExplorationRate)
	}
}

func TestClamp(t *testing.T) {
	c := newTestController()

	tests := []struct {
		name      string
		state     recommend.ExplorationState
		wantRate  float64
		wantEvent bool
	}{
		{"valid state untouched", recommend.ExplorationState{ExplorationRate: 0.2}, 0.2, false},
		{"above max clamped", recommend.ExplorationState{ExplorationRate: 0.9}, 0.30, true},
		{"below min clamped", recommend.ExplorationState{ExplorationRate: -1}, 0.05, true},
		{"NaN reset", recommend.ExplorationState{ExplorationRate: math.NaN()}, 0.15, true},
		{"negative count reset", recommend.ExplorationState{ExplorationRate: 0.2, ExploratoryItemsRated: -3}, 0.2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ev := c.Clamp(tt.state)
			if !approx(got.ExplorationRate, tt.wantRate) {
				t.Errorf("ExplorationRate = %f, want %f", got.ExplorationRate, tt.wantRate)
			}
			if (ev != nil) != tt.wantEvent {
				t.Errorf("event = %+v, wantEvent %v", ev, tt.wantEvent)
			}
			if ev != nil && ev.Kind != recommend.EventInvalidState {
				t.Errorf("event kind = %s", ev.Kind)
			}
		})
	}
}

func TestReservedSlots(t *testing.T) {
	tests := []struct {
		rate float64
		k    int
		want int
	}{
		{0.15, 20, 3},
		{0.05, 20, 1},
		{0.30, 10, 3},
		{0.15, 0, 0},
		{0.05, 5, 0},
		{1.0, 4, 4},
	}
	for _, tt := range tests {
		if got := ReservedSlots(tt.rate, tt.k); got != tt.want {
			t.Errorf("ReservedSlots(%f, %d) = %d, want %d", tt.rate, tt.k, got, tt.want)
		}
	}
}

func FuzzExplorationRateBounds(f *testing.F) {
	f.Add(0.15, 4.0, uint8(3), uint8(2))
	f.Add(0.30, 5.0, uint8(10), uint8(0))
	f.Add(0.05, 0.5, uint8(0), uint8(30))

	f.Fuzz(func(t *testing.T, start, rating float64, batches, penalties uint8) {
		if math.IsNaN(rating) || math.IsInf(rating, 0) {
			t.Skip()
		}
		c := newTestController()
		p := actionProfile()
		state, _ := c.Clamp(recommend.ExplorationState{UserID: 1, ExplorationRate: start})

		check := func(stage string) {
			if state.ExplorationRate < 0.05 || state.ExplorationRate > 0.30 {
				t.Fatalf("%s: rate %f outside [0.05, 0.30]", stage, state.ExplorationRate)
			}
		}
		check("clamp")

		history := []recommend.WatchRecord{rated(1, rating, "Documentary")}
		for i := 0; i < int(batches); i++ {
			state, _ = c.ApplyBatch(state, p, history, batchOf(history), now)
			check("batch")
		}
		for i := 0; i < int(penalties); i++ {
			state, _, _ = c.ApplyNegativeFeedback(state, i, meta("Documentary"), p, now)
			check("penalty")
		}
	})
}

func TestLearn_Transitions(t *testing.T) {
	c := newTestController()
	g := NewGraph(nil)

	history := []recommend.WatchRecord{
		rated(1, 4.0, "Action"),
		rated(2, 4.5, "Comedy"),
		rated(3, 2.0, "Comedy"),
		rated(4, 3.0, "Drama"),
		{ItemID: 5, WatchedAt: now.Add(5 * time.Minute), Metadata: meta("Horror")},
		rated(6, 5.0, "Action"),
	}

	observed := c.Learn(g, history, batchOf(history))

	if observed != 3 {
		t.Errorf("observed = %d, want 3", observed)
	}
	tests := []struct {
		from, to       string
		success, total int
	}{
		{"Action", "Comedy", 1, 1},
		{"Comedy", "Drama", 0, 1},
		{"Drama", "Action", 1, 1},
	}
	for _, tt := range tests {
		tr, ok := g.Get(tt.from, tt.to)
		if !ok {
			t.Errorf("transition %s->%s missing", tt.from, tt.to)
			continue
		}
		if tr.SuccessCount != tt.success || tr.TotalCount != tt.total {
			t.Errorf("%s->%s = %d/%d, want %d/%d", tt.from, tt.to, tr.SuccessCount, tr.TotalCount, tt.success, tt.total)
		}
	}
	if _, ok := g.Get("Comedy", "Comedy"); ok {
		t.Error("same-genre transition recorded")
	}
}

func TestLearn_NoDoubleCounting(t *testing.T) {
	c := newTestController()
	g := NewGraph(nil)
	history := []recommend.WatchRecord{rated(1, 4.0, "Action"), rated(2, 4.0, "Comedy")}

	c.Learn(g, history, batchOf(history))
	c.Learn(g, history, map[int]struct{}{})

	tr, _ := g.Get("Action", "Comedy")
	if tr.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", tr.TotalCount)
	}

	history = append(history, rated(3, 4.0, "Drama"))
	c.Learn(g, history, map[int]struct{}{3: {}})
	tr, _ = g.Get("Action", "Comedy")
	if tr.TotalCount != 1 {
		t.Errorf("TotalCount after second batch = %d, want 1", tr.TotalCount)
	}
	if tr, ok := g.Get("Comedy", "Drama"); !ok || tr.TotalCount != 1 {
		t.Errorf("Comedy->Drama = %+v, %v", tr, ok)
	}
}

func TestNewGraph_RepairsCounts(t *testing.T) {
	g := NewGraph([]recommend.GenreTransition{
		{From: "Action", To: "Comedy", SuccessCount: 5, TotalCount: 3},
		{From: "Drama", To: "Comedy", SuccessCount: -1, TotalCount: 2},
	})

	tr, _ := g.Get("action", "comedy")
	if tr.SuccessCount != 3 {
		t.Errorf("SuccessCount = %d, want capped at 3", tr.SuccessCount)
	}
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}

func TestTransitionBoost(t *testing.T) {
	c := newTestController()
	g := NewGraph([]recommend.GenreTransition{
		{From: "Action", To: "Comedy", SuccessCount: 3, TotalCount: 4},
		{From: "Action", To: "Drama", SuccessCount: 2, TotalCount: 2},
		{From: "Action", To: "Western", SuccessCount: 1, TotalCount: 4},
	})

	boost, reason := c.TransitionBoost(g, "Action", meta("Comedy", "Romance"))
	if !approx(boost, 0.1*0.75) {
		t.Errorf("boost = %f, want %f", boost, 0.1*0.75)
	}
	if reason == nil || reason.FromGenre != "Action" || reason.Genre != "Comedy" {
		t.Errorf("reason = %+v", reason)
	}

	if boost, _ := c.TransitionBoost(g, "Action", meta("Drama")); boost != 0 {
		t.Errorf("Drama boost = %f, want 0 below minimum total", boost)
	}
	if boost, _ := c.TransitionBoost(g, "Action", meta("Western")); boost != 0 {
		t.Errorf("Western boost = %f, want 0 below success rate", boost)
	}
	if boost, _ := c.TransitionBoost(g, "", meta("Comedy")); boost != 0 {
		t.Errorf("boost without last genre = %f, want 0", boost)
	}
}

func TestTransitionBoost_EligibilityProperty(t *testing.T) {
	c := newTestController()
	rng := rand.New(rand.NewSource(20260301))
	genres := []string{"Action", "Comedy", "Drama", "Horror", "Western", "Documentary"}

	for round := 0; round < 500; round++ {
		var table []recommend.GenreTransition
		for _, from := range genres {
			for _, to := range genres {
				if from == to || rng.Intn(2) == 0 {
					continue
				}
				total := rng.Intn(7)
				table = append(table, recommend.GenreTransition{
					From: from, To: to, TotalCount: total, SuccessCount: rng.Intn(total + 1),
				})
			}
		}
		g := NewGraph(table)

		from := genres[rng.Intn(len(genres))]
		to := genres[rng.Intn(len(genres))]
		if from == to {
			continue
		}

		boost, _ := c.TransitionBoost(g, from, meta(to))
		tr, ok := g.Get(from, to)
		eligible := ok && tr.TotalCount >= 3 && tr.SuccessRate() >= 0.5

		if eligible && boost <= 0 {
			t.Fatalf("round %d: eligible %+v produced no boost", round, tr)
		}
		if !eligible && boost != 0 {
			t.Fatalf("round %d: ineligible %+v (present=%v) produced boost %f", round, tr, ok, boost)
		}
	}
}
