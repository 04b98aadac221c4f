// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package replay implements the counterfactual replay evaluator.
//
// The evaluator re-scores a user's historical suggestion exposures under a
// proposed parameter change and compares acceptance against the exposures
// as they were served. It is pure and deterministic: the same exposures,
// feedback, parameters and evaluation time always produce the same report.
//
// # Approximate relevance
//
// Exposures store the pre-rerank score (BaseScore) and the position MMR
// assigned (DiversityRank), not the per-candidate similarity terms. The
// evaluator therefore approximates rather than inverts the original scoring:
//
//	rel      = BaseScore × weightFactor(sources)
//	penalty  = 1 − 1/DiversityRank
//	approx   = (1−λ)·rel − λ·penalty
//
// weightFactor is the change in the share of total source weight held by
// the exposure's contributing sources. It is exactly 1 when weights are
// unchanged.
//
// approx evaluated at the served parameters does not have to fall with
// DiversityRank, so it cannot order a replay by itself. The served order is
// the reference instead: each exposure's served key is the running minimum
// of approx down its request's ranks, and a replay sorts by
//
//	key = servedKey + approx(proposed) − approx(served)
//
// With no parameter change the shift is exactly zero and ties fall back to
// the diversity rank, so the replay reproduces the served order within
// every request. Reported scores are rel, on the same basis as BaseScore.
// Results are directional estimates only.
package replay

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Metrics summarizes one ranked exposure set.
type Metrics struct {
	Exposures             int     `json:"exposures" yaml:"exposures"`
	Positive              int     `json:"positive" yaml:"positive"`
	Negative              int     `json:"negative" yaml:"negative"`
	AcceptanceRate        float64 `json:"acceptance_rate" yaml:"acceptance_rate"`
	AverageScore          float64 `json:"average_score" yaml:"average_score"`
	HighConsensusFraction float64 `json:"high_consensus_fraction" yaml:"high_consensus_fraction"`
}

// RankedExposure is one exposure in a replayed ranking.
type RankedExposure struct {
	ExposureID    string                   `json:"exposure_id" yaml:"exposure_id"`
	ItemID        int                      `json:"item_id" yaml:"item_id"`
	Rank          int                      `json:"rank" yaml:"rank"`
	BaselineRank  int                      `json:"baseline_rank,omitempty" yaml:"baseline_rank,omitempty"`
	Score         float64                  `json:"score" yaml:"score"`
	BaselineScore float64                  `json:"baseline_score" yaml:"baseline_score"`
	Key           float64                  `json:"replay_key" yaml:"replay_key"`
	Level         recommend.ConsensusLevel `json:"consensus_level" yaml:"consensus_level"`
	Feedback      recommend.Polarity       `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// Report is the before/after comparison for one user.
type Report struct {
	UserID      int                 `json:"user_id" yaml:"user_id"`
	AsOf        time.Time           `json:"as_of" yaml:"as_of"`
	Since       time.Time           `json:"since" yaml:"since"`
	ServingSize int                 `json:"serving_size" yaml:"serving_size"`
	Params      recommend.Overrides `json:"params" yaml:"params"`

	// Original covers every exposure in the window as served.
	Original Metrics `json:"original" yaml:"original"`

	// Baseline is the original parameters re-scored and truncated to the
	// serving size, the like-for-like comparison for Simulated.
	Baseline Metrics `json:"baseline" yaml:"baseline"`

	// Simulated is the proposed parameters re-scored and truncated.
	Simulated Metrics `json:"simulated" yaml:"simulated"`

	// AcceptanceDelta is Simulated minus Baseline acceptance, the headline
	// estimated impact.
	AcceptanceDelta float64 `json:"acceptance_delta" yaml:"acceptance_delta"`

	// FullSetDelta is Simulated minus Original acceptance.
	FullSetDelta float64 `json:"full_set_delta" yaml:"full_set_delta"`

	Ranking     []RankedExposure `json:"ranking" yaml:"ranking"`
	Approximate bool             `json:"approximate" yaml:"approximate"`
}

// Input is a replay job for one user.
type Input struct {
	UserID    int
	Exposures []recommend.SuggestionExposure
	Feedback  []recommend.Feedback
	Params    recommend.Overrides

	// AsOf is the evaluation time; the window is [AsOf-Lookback, AsOf].
	AsOf time.Time

	// Lookback overrides the configured lookback when positive.
	Lookback time.Duration
}

// Evaluator runs counterfactual replays.
type Evaluator struct {
	cfg     recommend.ReplayConfig
	weights recommend.SourcesConfig
}

// NewEvaluator creates an evaluator. weights is the source configuration
// the exposures were served under.
func NewEvaluator(cfg recommend.ReplayConfig, weights recommend.SourcesConfig) *Evaluator {
	return &Evaluator{cfg: cfg, weights: weights}
}

// Evaluate replays the input and returns the comparison report.
//
//nolint:gocritic // hugeParam: Input passed by value, read once per job
func (e *Evaluator) Evaluate(in Input) (*Report, error) {
	if err := validateParams(in.Params); err != nil {
		return nil, err
	}
	if in.AsOf.IsZero() {
		return nil, fmt.Errorf("%w: replay requires an evaluation time", recommend.ErrInvalidRequest)
	}

	lookback := e.cfg.Lookback
	if in.Lookback > 0 {
		lookback = in.Lookback
	}
	since := in.AsOf.Add(-lookback)

	exposures := windowed(in.UserID, in.Exposures, since, in.AsOf)
	feedback := latestFeedback(in.UserID, in.Feedback, since, in.AsOf)
	known := knownSources(exposures)

	original := make([]RankedExposure, len(exposures))
	for i := range exposures {
		original[i] = RankedExposure{
			ExposureID: exposures[i].ID,
			ItemID:     exposures[i].ItemID,
			Score:      exposures[i].BaseScore,
			Level:      exposures[i].ConsensusLevel,
			Feedback:   feedback[exposures[i].ItemID],
		}
	}

	served := servedKeys(exposures, func(exp *recommend.SuggestionExposure) float64 {
		return e.approx(exp, recommend.Overrides{}, known)
	})
	baseline := e.rank(exposures, served, recommend.Overrides{}, known, feedback)
	simulated := e.rank(exposures, served, in.Params, known, feedback)

	baselineRanks := make(map[string]RankedExposure, len(baseline))
	for _, r := range baseline {
		baselineRanks[r.ExposureID] = r
	}
	for i := range simulated {
		if b, ok := baselineRanks[simulated[i].ExposureID]; ok {
			simulated[i].BaselineRank = b.Rank
			simulated[i].BaselineScore = b.Score
		} else if exp := exposureByID(exposures, simulated[i].ExposureID); exp != nil {
			simulated[i].BaselineScore = exp.BaseScore
		}
	}

	report := &Report{
		UserID:      in.UserID,
		AsOf:        in.AsOf,
		Since:       since,
		ServingSize: e.cfg.ServingSize,
		Params:      in.Params,
		Original:    summarize(original),
		Baseline:    summarize(baseline),
		Simulated:   summarize(simulated),
		Ranking:     simulated,
		Approximate: true,
	}
	report.AcceptanceDelta = report.Simulated.AcceptanceRate - report.Baseline.AcceptanceRate
	report.FullSetDelta = report.Simulated.AcceptanceRate - report.Original.AcceptanceRate
	return report, nil
}

// servedKeys returns, per exposure index, the running minimum of approx
// down each request's served order. Keys never rise with rank inside a
// request.
func servedKeys(exposures []recommend.SuggestionExposure, approx func(*recommend.SuggestionExposure) float64) []float64 {
	order := make([]int, len(exposures))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return servedBefore(&exposures[order[i]], &exposures[order[j]])
	})

	keys := make([]float64, len(exposures))
	for n, idx := range order {
		exp := &exposures[idx]
		key := approx(exp)
		if n > 0 {
			prev := order[n-1]
			if exposures[prev].RequestID == exp.RequestID && keys[prev] < key {
				key = keys[prev]
			}
		}
		keys[idx] = key
	}
	return keys
}

// servedBefore orders exposures by request, then served position.
func servedBefore(a, b *recommend.SuggestionExposure) bool {
	if a.RequestID != b.RequestID {
		return a.RequestID < b.RequestID
	}
	if a.DiversityRank != b.DiversityRank {
		return a.DiversityRank < b.DiversityRank
	}
	if a.ItemID != b.ItemID {
		return a.ItemID < b.ItemID
	}
	return a.ID < b.ID
}

// rank orders every exposure by its served key shifted under params and
// truncates to the serving size.
func (e *Evaluator) rank(
	exposures []recommend.SuggestionExposure,
	served []float64,
	params recommend.Overrides,
	known []string,
	feedback map[int]recommend.Polarity,
) []RankedExposure {
	type scored struct {
		exp *recommend.SuggestionExposure
		rel float64
		key float64
	}
	all := make([]scored, len(exposures))
	for i := range exposures {
		exp := &exposures[i]
		shift := e.approx(exp, params, known) - e.approx(exp, recommend.Overrides{}, known)
		all[i] = scored{exp: exp, rel: e.relevance(exp, params, known), key: served[i] + shift}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].key != all[j].key {
			return all[i].key > all[j].key
		}
		return servedBefore(all[i].exp, all[j].exp)
	})

	n := min(len(all), e.cfg.ServingSize)
	out := make([]RankedExposure, n)
	for i := 0; i < n; i++ {
		out[i] = RankedExposure{
			ExposureID: all[i].exp.ID,
			ItemID:     all[i].exp.ItemID,
			Rank:       i + 1,
			Score:      all[i].rel,
			Key:        all[i].key,
			Level:      all[i].exp.ConsensusLevel,
			Feedback:   feedback[all[i].exp.ItemID],
		}
	}
	return out
}

// relevance is BaseScore scaled by the source weight change in params.
func (e *Evaluator) relevance(exp *recommend.SuggestionExposure, params recommend.Overrides, known []string) float64 {
	rel := exp.BaseScore
	if len(params.SourceWeights) > 0 {
		rel *= e.weightFactor(exp.Sources, params.SourceWeights, known)
	}
	return rel
}

// approx is the approximate MMR score of an exposure under params.
func (e *Evaluator) approx(exp *recommend.SuggestionExposure, params recommend.Overrides, known []string) float64 {
	lambda := exp.MMRLambda
	if params.MMRLambda != nil {
		lambda = *params.MMRLambda
	}
	return (1-lambda)*e.relevance(exp, params, known) - lambda*RankPenalty(exp.DiversityRank)
}

// RankPenalty approximates the similarity penalty an exposure carried from
// its diversity rank: 0 for the first position, approaching 1 further down.
func RankPenalty(rank int) float64 {
	if rank <= 1 {
		return 0
	}
	return 1 - 1/float64(rank)
}

// weightFactor is the ratio of the new to the old share of total source
// weight held by sources.
func (e *Evaluator) weightFactor(sources []string, proposed map[string]float64, known []string) float64 {
	if len(sources) == 0 {
		return 1
	}
	oldWeight := e.weights.Weight
	newWeight := func(name string) float64 {
		if w, ok := proposed[name]; ok {
			return w
		}
		return oldWeight(name)
	}

	oldShare := share(sources, known, oldWeight)
	newShare := share(sources, known, newWeight)
	if oldShare <= 0 {
		return 1
	}
	return newShare / oldShare
}

func share(sources, known []string, weight func(string) float64) float64 {
	var part, total float64
	for _, s := range sources {
		part += weight(s)
	}
	for _, s := range known {
		total += weight(s)
	}
	if total <= 0 {
		return 0
	}
	return part / total
}

// summarize computes metrics over a ranked set. Acceptance counts each
// item once even when it was exposed several times.
//
//nolint:gocritic // rangeValCopy: RankedExposure passed by value in range, acceptable for clarity
func summarize(ranked []RankedExposure) Metrics {
	m := Metrics{Exposures: len(ranked)}
	if len(ranked) == 0 {
		return m
	}

	var sum float64
	var high int
	counted := make(map[int]struct{}, len(ranked))
	for _, r := range ranked {
		sum += r.Score
		if r.Level == recommend.ConsensusHigh {
			high++
		}
		if _, ok := counted[r.ItemID]; ok {
			continue
		}
		counted[r.ItemID] = struct{}{}
		switch r.Feedback {
		case recommend.PolarityPositive:
			m.Positive++
		case recommend.PolarityNegative:
			m.Negative++
		}
	}

	m.AverageScore = sum / float64(len(ranked))
	m.HighConsensusFraction = float64(high) / float64(len(ranked))
	if judged := m.Positive + m.Negative; judged > 0 {
		m.AcceptanceRate = float64(m.Positive) / float64(judged)
	}
	return m
}

// windowed returns the user's exposures shown within [since, asOf].
//
//nolint:gocritic // rangeValCopy: SuggestionExposure passed by value in range, acceptable for clarity
func windowed(userID int, exposures []recommend.SuggestionExposure, since, asOf time.Time) []recommend.SuggestionExposure {
	out := make([]recommend.SuggestionExposure, 0, len(exposures))
	for _, exp := range exposures {
		if exp.UserID != userID || exp.ShownAt.Before(since) || exp.ShownAt.After(asOf) {
			continue
		}
		out = append(out, exp)
	}
	return out
}

// latestFeedback joins feedback by item, keeping the latest event per item.
// Simultaneous events resolve to negative.
func latestFeedback(userID int, feedback []recommend.Feedback, since, asOf time.Time) map[int]recommend.Polarity {
	type latest struct {
		at       time.Time
		polarity recommend.Polarity
	}
	byItem := make(map[int]latest)
	for _, f := range feedback {
		if f.UserID != userID || f.At.Before(since) || f.At.After(asOf) {
			continue
		}
		cur, ok := byItem[f.ItemID]
		switch {
		case !ok, f.At.After(cur.at):
			byItem[f.ItemID] = latest{at: f.At, polarity: f.Polarity}
		case f.At.Equal(cur.at) && f.Polarity == recommend.PolarityNegative:
			byItem[f.ItemID] = latest{at: f.At, polarity: f.Polarity}
		}
	}

	out := make(map[int]recommend.Polarity, len(byItem))
	for id, l := range byItem {
		out[id] = l.polarity
	}
	return out
}

func knownSources(exposures []recommend.SuggestionExposure) []string {
	seen := make(map[string]struct{})
	for i := range exposures {
		for _, s := range exposures[i].Sources {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func exposureByID(exposures []recommend.SuggestionExposure, id string) *recommend.SuggestionExposure {
	for i := range exposures {
		if exposures[i].ID == id {
			return &exposures[i]
		}
	}
	return nil
}

func validateParams(p recommend.Overrides) error {
	if p.MMRLambda != nil {
		l := *p.MMRLambda
		if math.IsNaN(l) || l < 0 || l > 1 {
			return fmt.Errorf("%w: mmr_lambda must be within [0, 1], got %f", recommend.ErrInvalidRequest, l)
		}
	}
	for name, w := range p.SourceWeights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weight for source %q must be non-negative, got %f", recommend.ErrInvalidRequest, name, w)
		}
	}
	return nil
}
