// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package replay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

var asOf = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func newTestEvaluator(servingSize int) *Evaluator {
	cfg := recommend.DefaultConfig()
	cfg.Replay.ServingSize = servingSize
	cfg.Sources.Weights = map[string]float64{"tmdb": 1, "trakt": 1, "simkl": 1}
	return NewEvaluator(cfg.Replay, cfg.Sources)
}

func exposure(id, item, rank int, base float64, level recommend.ConsensusLevel, sources ...string) recommend.SuggestionExposure {
	return recommend.SuggestionExposure{
		ID:             fmt.Sprintf("exp-%d", id),
		RequestID:      "req-1",
		UserID:         7,
		ItemID:         item,
		ShownAt:        asOf.Add(-time.Duration(id) * time.Hour),
		BaseScore:      base,
		ConsensusLevel: level,
		Sources:        sources,
		MMRLambda:      0.3,
		DiversityRank:  rank,
	}
}

func fb(item int, p recommend.Polarity, ago time.Duration) recommend.Feedback {
	return recommend.Feedback{UserID: 7, ItemID: item, Polarity: p, At: asOf.Add(-ago)}
}

func fixture() ([]recommend.SuggestionExposure, []recommend.Feedback) {
	exposures := []recommend.SuggestionExposure{
		exposure(1, 101, 1, 0.90, recommend.ConsensusHigh, "tmdb", "trakt", "simkl"),
		exposure(2, 102, 2, 0.80, recommend.ConsensusMedium, "tmdb", "trakt"),
		exposure(3, 103, 3, 0.85, recommend.ConsensusLow, "simkl"),
		exposure(4, 104, 4, 0.40, recommend.ConsensusLow, "tmdb"),
		exposure(5, 105, 5, 0.70, recommend.ConsensusMedium, "trakt", "simkl"),
	}
	feedback := []recommend.Feedback{
		fb(101, recommend.PolarityPositive, time.Hour),
		fb(102, recommend.PolarityNegative, time.Hour),
		fb(103, recommend.PolarityPositive, time.Hour),
		fb(104, recommend.PolarityNegative, time.Hour),
	}
	return exposures, feedback
}

func rankedIDs(r []RankedExposure) []int {
	out := make([]int, len(r))
	for i := range r {
		out[i] = r[i].ItemID
	}
	return out
}

func TestEvaluate_IdentityReproducesBaseline(t *testing.T) {
	exposures, feedback := fixture()
	same := 0.3

	tests := []struct {
		name   string
		params recommend.Overrides
	}{
		{"no parameters", recommend.Overrides{}},
		{"same lambda", recommend.Overrides{MMRLambda: &same}},
		{"same weights", recommend.Overrides{SourceWeights: map[string]float64{"tmdb": 1, "trakt": 1, "simkl": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestEvaluator(50).Evaluate(Input{
				UserID: 7, Exposures: exposures, Feedback: feedback, Params: tt.params, AsOf: asOf,
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if report.Simulated != report.Baseline {
				t.Errorf("Simulated = %+v, want Baseline %+v", report.Simulated, report.Baseline)
			}
			if report.AcceptanceDelta != 0 {
				t.Errorf("AcceptanceDelta = %f, want 0", report.AcceptanceDelta)
			}
			for _, r := range report.Ranking {
				if r.Rank != r.BaselineRank || r.Score != r.BaselineScore {
					t.Errorf("item %d moved: rank %d vs %d, score %f vs %f",
						r.ItemID, r.Rank, r.BaselineRank, r.Score, r.BaselineScore)
				}
			}
		})
	}
}

func TestEvaluate_OriginalMetrics(t *testing.T) {
	exposures, feedback := fixture()

	report, err := newTestEvaluator(50).Evaluate(Input{UserID: 7, Exposures: exposures, Feedback: feedback, AsOf: asOf})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	want := Metrics{
		Exposures:             5,
		Positive:              2,
		Negative:              2,
		AcceptanceRate:        0.5,
		AverageScore:          (0.90 + 0.80 + 0.85 + 0.40 + 0.70) / 5,
		HighConsensusFraction: 0.2,
	}
	got := report.Original
	if got.Exposures != want.Exposures || got.Positive != want.Positive || got.Negative != want.Negative {
		t.Errorf("Original counts = %+v, want %+v", got, want)
	}
	if math.Abs(got.AcceptanceRate-want.AcceptanceRate) > 1e-9 ||
		math.Abs(got.AverageScore-want.AverageScore) > 1e-9 ||
		math.Abs(got.HighConsensusFraction-want.HighConsensusFraction) > 1e-9 {
		t.Errorf("Original = %+v, want %+v", got, want)
	}
	if !report.Approximate {
		t.Error("report must be flagged approximate")
	}
}

func TestEvaluate_LambdaChangeReorders(t *testing.T) {
	exposures, feedback := fixture()
	zero := 0.0

	report, err := newTestEvaluator(3).Evaluate(Input{
		UserID: 7, Exposures: exposures, Feedback: feedback, Params: recommend.Overrides{MMRLambda: &zero}, AsOf: asOf,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	// Lambda zero ranks purely by base score.
	if got := rankedIDs(report.Ranking); !reflect.DeepEqual(got, []int{101, 103, 102}) {
		t.Errorf("ranking = %v, want [101 103 102]", got)
	}
	// Baseline at lambda 0.3 keeps the served order for the top three.
	if report.Baseline.Exposures != 3 || report.Simulated.Exposures != 3 {
		t.Errorf("truncation = %d/%d, want 3/3", report.Baseline.Exposures, report.Simulated.Exposures)
	}
	if report.Simulated.AcceptanceRate != 2.0/3.0 {
		t.Errorf("Simulated acceptance = %f, want 2/3", report.Simulated.AcceptanceRate)
	}
	wantDelta := report.Simulated.AcceptanceRate - report.Baseline.AcceptanceRate
	if report.AcceptanceDelta != wantDelta {
		t.Errorf("AcceptanceDelta = %f, want %f", report.AcceptanceDelta, wantDelta)
	}
}

func TestEvaluate_SourceWeightsShiftRelevance(t *testing.T) {
	exposures := []recommend.SuggestionExposure{
		exposure(1, 201, 1, 0.60, recommend.ConsensusLow, "tmdb"),
		exposure(2, 202, 1, 0.55, recommend.ConsensusLow, "trakt"),
	}
	e := newTestEvaluator(50)

	report, err := e.Evaluate(Input{
		UserID:    7,
		Exposures: exposures,
		Params:    recommend.Overrides{SourceWeights: map[string]float64{"trakt": 3}},
		AsOf:      asOf,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := rankedIDs(report.Ranking); !reflect.DeepEqual(got, []int{202, 201}) {
		t.Errorf("ranking = %v, want trakt-backed item first", got)
	}

	if f := e.weightFactor([]string{"tmdb"}, map[string]float64{"trakt": 3}, []string{"tmdb", "trakt"}); math.Abs(f-0.5) > 1e-9 {
		t.Errorf("weightFactor(tmdb) = %f, want 0.5", f)
	}
	if f := e.weightFactor([]string{"trakt"}, map[string]float64{"trakt": 3}, []string{"tmdb", "trakt"}); math.Abs(f-1.5) > 1e-9 {
		t.Errorf("weightFactor(trakt) = %f, want 1.5", f)
	}
}

func TestEvaluate_Window(t *testing.T) {
	exposures, feedback := fixture()
	old := exposure(900, 999, 1, 0.99, recommend.ConsensusHigh, "tmdb")
	old.ShownAt = asOf.Add(-60 * 24 * time.Hour)
	other := exposure(901, 998, 1, 0.99, recommend.ConsensusHigh, "tmdb")
	other.UserID = 8
	future := exposure(902, 997, 1, 0.99, recommend.ConsensusHigh, "tmdb")
	future.ShownAt = asOf.Add(time.Hour)
	exposures = append(exposures, old, other, future)

	report, err := newTestEvaluator(50).Evaluate(Input{UserID: 7, Exposures: exposures, Feedback: feedback, AsOf: asOf})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Original.Exposures != 5 {
		t.Errorf("Original.Exposures = %d, want 5", report.Original.Exposures)
	}

	report, err = newTestEvaluator(50).Evaluate(Input{
		UserID: 7, Exposures: exposures, Feedback: feedback, AsOf: asOf, Lookback: 90 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Original.Exposures != 6 {
		t.Errorf("Original.Exposures with longer lookback = %d, want 6", report.Original.Exposures)
	}
}

func TestLatestFeedback(t *testing.T) {
	since := asOf.Add(-24 * time.Hour)
	feedback := []recommend.Feedback{
		fb(1, recommend.PolarityNegative, 3*time.Hour),
		fb(1, recommend.PolarityPositive, time.Hour),
		fb(2, recommend.PolarityPositive, time.Hour),
		fb(2, recommend.PolarityNegative, time.Hour),
		fb(3, recommend.PolarityPositive, 48*time.Hour),
	}

	got := latestFeedback(7, feedback, since, asOf)
	want := map[int]recommend.Polarity{1: recommend.PolarityPositive, 2: recommend.PolarityNegative}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("latestFeedback() = %v, want %v", got, want)
	}
}

func TestSummarize_CountsItemsOnce(t *testing.T) {
	ranked := []RankedExposure{
		{ItemID: 1, Score: 1, Feedback: recommend.PolarityPositive},
		{ItemID: 1, Score: 1, Feedback: recommend.PolarityPositive},
		{ItemID: 2, Score: 1, Feedback: recommend.PolarityNegative},
	}
	m := summarize(ranked)
	if m.Positive != 1 || m.Negative != 1 || m.AcceptanceRate != 0.5 {
		t.Errorf("summarize() = %+v", m)
	}
	if empty := summarize(nil); empty != (Metrics{}) {
		t.Errorf("summarize(nil) = %+v, want zero", empty)
	}
}

func TestRankPenalty(t *testing.T) {
	tests := []struct {
		rank int
		want float64
	}{
		{0, 0}, {1, 0}, {2, 0.5}, {4, 0.75},
	}
	for _, tt := range tests {
		if got := RankPenalty(tt.rank); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("RankPenalty(%d) = %f, want %f", tt.rank, got, tt.want)
		}
	}
}

func TestEvaluate_InvalidParams(t *testing.T) {
	bad := 1.5
	tests := []struct {
		name string
		in   Input
	}{
		{"lambda out of range", Input{UserID: 7, AsOf: asOf, Params: recommend.Overrides{MMRLambda: &bad}}},
		{"negative weight", Input{UserID: 7, AsOf: asOf, Params: recommend.Overrides{SourceWeights: map[string]float64{"tmdb": -1}}}},
		{"missing evaluation time", Input{UserID: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEvaluator(50).Evaluate(tt.in)
			if !errors.Is(err, recommend.ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestEvaluate_EmptyHistory(t *testing.T) {
	report, err := newTestEvaluator(50).Evaluate(Input{UserID: 7, AsOf: asOf})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(report.Ranking) != 0 || report.AcceptanceDelta != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	sources := []string{"tmdb", "trakt", "simkl"}

	var exposures []recommend.SuggestionExposure
	var feedback []recommend.Feedback
	for i := 1; i <= 200; i++ {
		// Coarse scores and shared timestamps force every tie-break rule.
		e := exposure(i, 1000+rng.Intn(80), 1+rng.Intn(20), float64(rng.Intn(10))/10,
			recommend.ConsensusLevel(rng.Intn(4)), sources[:1+rng.Intn(3)]...)
		e.ShownAt = asOf.Add(-time.Duration(rng.Intn(5)) * time.Hour)
		exposures = append(exposures, e)
		if rng.Intn(3) == 0 {
			p := recommend.PolarityPositive
			if rng.Intn(2) == 0 {
				p = recommend.PolarityNegative
			}
			feedback = append(feedback, fb(e.ItemID, p, time.Duration(rng.Intn(3))*time.Minute))
		}
	}

	lambda := 0.6
	in := Input{
		UserID: 7, Exposures: exposures, Feedback: feedback, AsOf: asOf,
		Params: recommend.Overrides{MMRLambda: &lambda, SourceWeights: map[string]float64{"simkl": 2.5}},
	}
	first, err := newTestEvaluator(50).Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := newTestEvaluator(50).Evaluate(in)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different report", run)
		}
	}
}

func metricsClose(a, b Metrics) bool {
	const eps = 1e-12
	return a.Exposures == b.Exposures && a.Positive == b.Positive && a.Negative == b.Negative &&
		math.Abs(a.AcceptanceRate-b.AcceptanceRate) < eps &&
		math.Abs(a.AverageScore-b.AverageScore) < eps &&
		math.Abs(a.HighConsensusFraction-b.HighConsensusFraction) < eps
}

func TestEvaluate_UnchangedParametersKeepServedOrder(t *testing.T) {
	// Base scores fall and rise again down the served list, so the
	// approximate score alone would move 103 above 102.
	single := []recommend.SuggestionExposure{
		exposure(1, 101, 1, 0.90, recommend.ConsensusHigh, "tmdb", "trakt"),
		exposure(2, 102, 2, 0.50, recommend.ConsensusLow, "tmdb"),
		exposure(3, 103, 3, 0.80, recommend.ConsensusMedium, "trakt"),
	}
	two := append([]recommend.SuggestionExposure{}, single...)
	for i, item := range []int{201, 202, 203} {
		e := exposure(10+i, item, i+1, []float64{0.3, 0.95, 0.1}[i], recommend.ConsensusLow, "simkl")
		e.RequestID = "req-2"
		two = append(two, e)
	}
	feedback := []recommend.Feedback{
		fb(101, recommend.PolarityPositive, time.Hour),
		fb(102, recommend.PolarityNegative, time.Hour),
		fb(202, recommend.PolarityPositive, time.Hour),
	}
	same := 0.3

	tests := []struct {
		name      string
		exposures []recommend.SuggestionExposure
		params    recommend.Overrides
	}{
		{"one request", single, recommend.Overrides{}},
		{"one request, same lambda", single, recommend.Overrides{MMRLambda: &same}},
		{"two requests", two, recommend.Overrides{}},
		{"two requests, same weights", two, recommend.Overrides{SourceWeights: map[string]float64{"tmdb": 1, "trakt": 1, "simkl": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestEvaluator(50).Evaluate(Input{
				UserID: 7, Exposures: tt.exposures, Feedback: feedback, Params: tt.params, AsOf: asOf,
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			lastRank := map[string]int{}
			for _, r := range report.Ranking {
				exp := exposureByID(tt.exposures, r.ExposureID)
				if exp.DiversityRank <= lastRank[exp.RequestID] {
					t.Errorf("ranking %v breaks the served order of %s", rankedIDs(report.Ranking), exp.RequestID)
				}
				lastRank[exp.RequestID] = exp.DiversityRank
				if r.Score != exp.BaseScore {
					t.Errorf("item %d score = %f, want base score %f", r.ItemID, r.Score, exp.BaseScore)
				}
			}
			if !metricsClose(report.Simulated, report.Original) {
				t.Errorf("Simulated = %+v, want Original %+v", report.Simulated, report.Original)
			}
			if report.AcceptanceDelta != 0 || math.Abs(report.FullSetDelta) > 1e-12 {
				t.Errorf("deltas = %f / %f, want 0", report.AcceptanceDelta, report.FullSetDelta)
			}
		})
	}
}

func TestEvaluate_LambdaChangeMovesWithinRequest(t *testing.T) {
	exposures := []recommend.SuggestionExposure{
		exposure(1, 101, 1, 0.90, recommend.ConsensusHigh, "tmdb"),
		exposure(2, 102, 2, 0.50, recommend.ConsensusLow, "tmdb"),
		exposure(3, 103, 3, 0.80, recommend.ConsensusMedium, "tmdb"),
	}
	zero := 0.0

	report, err := newTestEvaluator(50).Evaluate(Input{
		UserID: 7, Exposures: exposures, Params: recommend.Overrides{MMRLambda: &zero}, AsOf: asOf,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	// Dropping diversity pressure lifts the more relevant 103 over 102.
	if got := rankedIDs(report.Ranking); !reflect.DeepEqual(got, []int{101, 103, 102}) {
		t.Errorf("ranking = %v, want [101 103 102]", got)
	}
}

func TestServedKeys_NeverRiseWithinRequest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var exposures []recommend.SuggestionExposure
	for i := 1; i <= 60; i++ {
		e := exposure(i, 500+i, 1+(i%10), rng.Float64(), recommend.ConsensusLow, "tmdb")
		e.RequestID = fmt.Sprintf("req-%d", i%4)
		exposures = append(exposures, e)
	}
	e := newTestEvaluator(50)
	keys := servedKeys(exposures, func(exp *recommend.SuggestionExposure) float64 {
		return e.approx(exp, recommend.Overrides{}, []string{"tmdb"})
	})

	for i := range exposures {
		for j := range exposures {
			a, b := &exposures[i], &exposures[j]
			if a.RequestID == b.RequestID && servedBefore(a, b) && keys[i] < keys[j] {
				t.Fatalf("key of rank %d (%f) below rank %d (%f) in %s",
					a.DiversityRank, keys[i], b.DiversityRank, keys[j], a.RequestID)
			}
		}
	}
}
