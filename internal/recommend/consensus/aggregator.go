// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package consensus merges per-source candidate scores into a consensus
// score and consensus level.
//
// Each source's raw scores are normalized to [0, 1], either against the
// source's configured range or min-max over the request's candidates. The
// consensus score is the weighted average of normalized scores over the
// sources that actually scored the candidate, so a missing source neither
// inflates nor deflates the result.
package consensus

import (
	"sort"

	"github.com/tomtom215/marquee/internal/recommend"
)

// degenerateScore is the normalized score when a source's observed range is empty.
const degenerateScore = 0.5

// Aggregator computes consensus scores. It is pure and safe for concurrent use.
type Aggregator struct {
	sources   recommend.SourcesConfig
	consensus recommend.ConsensusConfig
}

// NewAggregator creates an aggregator.
func NewAggregator(sources recommend.SourcesConfig, consensus recommend.ConsensusConfig) *Aggregator {
	return &Aggregator{sources: sources, consensus: consensus}
}

// Level maps a count of agreeing sources to a consensus level.
// It is monotone non-decreasing in agreeing.
func (a *Aggregator) Level(agreeing int) recommend.ConsensusLevel {
	switch {
	case agreeing <= 0:
		return recommend.ConsensusNone
	case agreeing >= a.consensus.HighMinSources:
		return recommend.ConsensusHigh
	case agreeing >= a.consensus.MediumMinSources:
		return recommend.ConsensusMedium
	default:
		return recommend.ConsensusLow
	}
}

type observedRange struct {
	min, max float64
	seen     bool
}

// Aggregate scores every candidate. Candidates with no source scores are
// dropped with a CandidateDropped event. The result is sorted by consensus
// descending, then item id ascending.
//
//nolint:gocritic // rangeValCopy: Candidate passed by value in range, acceptable for clarity
func (a *Aggregator) Aggregate(candidates []recommend.Candidate) ([]recommend.ScoredCandidate, recommend.Events) {
	var events recommend.Events

	ranges := map[string]*observedRange{}
	for _, c := range candidates {
		for name, s := range c.SourceScores {
			r, ok := ranges[name]
			if !ok {
				r = &observedRange{}
				ranges[name] = r
			}
			if !r.seen || s < r.min {
				r.min = s
			}
			if !r.seen || s > r.max {
				r.max = s
			}
			r.seen = true
		}
	}

	out := make([]recommend.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.SourceScores) == 0 {
			events.Add(recommend.Event{
				Kind:    recommend.EventCandidateDropped,
				ItemID:  c.ItemID,
				Message: "no source scored the candidate",
			})
			continue
		}

		names := make([]string, 0, len(c.SourceScores))
		for name := range c.SourceScores {
			names = append(names, name)
		}
		sort.Strings(names)

		var weighted, weights, plain float64
		agreeing := 0
		for _, name := range names {
			n := a.normalize(name, c.SourceScores[name], ranges[name])
			w := a.sources.Weight(name)
			weighted += w * n
			weights += w
			plain += n
			if n >= a.consensus.AgreementThreshold {
				agreeing++
			}
		}

		var score float64
		if weights > 0 {
			score = weighted / weights
		} else {
			// Every responding source is weighted zero; fall back to the plain mean.
			score = plain / float64(len(names))
		}

		out = append(out, recommend.ScoredCandidate{
			Candidate: c,
			Consensus: score,
			Level:     a.Level(agreeing),
			Sources:   names,
			Score:     score,
			Reasons: []recommend.Reason{{
				Code:    recommend.ReasonConsensus,
				Sources: names,
				Value:   score,
			}},
		})
	}

	SortByScore(out)
	return out, events
}

func (a *Aggregator) normalize(name string, raw float64, observed *observedRange) float64 {
	if r, ok := a.sources.Ranges[name]; ok && r.Max > r.Min {
		return clamp01((raw - r.Min) / (r.Max - r.Min))
	}
	if observed == nil || observed.max <= observed.min {
		return degenerateScore
	}
	return clamp01((raw - observed.min) / (observed.max - observed.min))
}

// SortByScore sorts candidates by Score descending, then item id ascending.
func SortByScore(items []recommend.ScoredCandidate) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
