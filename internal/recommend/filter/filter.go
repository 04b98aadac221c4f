// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package filter applies fine-grained accept, reject and boost decisions to
// scored candidates using the user's taste profile.
//
// Rejection checks run first: avoided subgenre, niche with no prior
// exposure, then runtime outside the user's typical range. Boosts are only
// evaluated for candidates that survive; a rejected candidate is removed
// regardless of any boost it would have earned.
package filter

import (
	"math"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Outcome is the single decision made for a candidate.
type Outcome int

const (
	// Pass leaves the candidate untouched.
	Pass Outcome = iota
	// Reject removes the candidate.
	Reject
	// Boost keeps the candidate with an additive score boost.
	Boost
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Reject:
		return "reject"
	case Boost:
		return "boost"
	default:
		return "pass"
	}
}

// Decision is the filter result for one candidate.
type Decision struct {
	Outcome Outcome
	Boost   float64
	Reasons []recommend.Reason
}

// Filter evaluates candidates against a taste profile. It is pure and safe
// for concurrent use.
type Filter struct {
	cfg      recommend.FilterConfig
	taxonomy recommend.Taxonomy
}

// New creates a filter.
func New(cfg recommend.FilterConfig, taxonomy recommend.Taxonomy) *Filter {
	return &Filter{cfg: cfg, taxonomy: taxonomy}
}

// Evaluate decides the outcome for a single candidate. Candidates without
// metadata always pass; they are still scorable on consensus alone.
func (f *Filter) Evaluate(c *recommend.ScoredCandidate, p *recommend.TasteProfile) Decision {
	m := c.Metadata
	if !m.HasGenres() || p == nil {
		return Decision{Outcome: Pass}
	}

	subgenres := f.taxonomy.MatchSubgenres(m)

	if r, ok := f.avoidedSubgenre(subgenres, p); ok {
		return Decision{Outcome: Reject, Reasons: []recommend.Reason{r}}
	}
	if r, ok := f.incompatibleNiche(m, p); ok {
		return Decision{Outcome: Reject, Reasons: []recommend.Reason{r}}
	}
	if r, ok := f.runtimeMismatch(m, p); ok {
		return Decision{Outcome: Reject, Reasons: []recommend.Reason{r}}
	}

	var d Decision
	if r, ok := f.crossGenreBoost(m, p); ok {
		d.Boost += r.Boost
		d.Reasons = append(d.Reasons, r)
	}
	if r, ok := f.preferredSubgenreBoost(subgenres, p); ok {
		d.Boost += r.Boost
		d.Reasons = append(d.Reasons, r)
	}
	if d.Boost > 0 {
		d.Outcome = Boost
	}
	return d
}

// Apply evaluates every candidate, drops rejected ones and adds boosts and
// their reasons to the survivors. Order is preserved. Score is not updated;
// the caller applies the boost budget.
//
//nolint:gocritic // rangeValCopy: ScoredCandidate copied into the result slice
func (f *Filter) Apply(items []recommend.ScoredCandidate, p *recommend.TasteProfile) ([]recommend.ScoredCandidate, recommend.Events) {
	var events recommend.Events
	out := make([]recommend.ScoredCandidate, 0, len(items))
	for _, c := range items {
		d := f.Evaluate(&c, p)
		switch d.Outcome {
		case Reject:
			reason := d.Reasons[0]
			events.Add(recommend.Event{
				Kind:   recommend.EventCandidateFiltered,
				ItemID: c.ItemID,
				Reason: &reason,
			})
			continue
		case Boost:
			c.Boost += d.Boost
			c.Reasons = append(c.Reasons, d.Reasons...)
		}
		out = append(out, c)
	}
	return out, events
}

func (f *Filter) avoidedSubgenre(matched []recommend.SubgenreRule, p *recommend.TasteProfile) (recommend.Reason, bool) {
	for _, rule := range matched {
		pat, ok := p.Subgenre(rule.Genre, rule.Name)
		if ok && pat.Status == recommend.SubgenreAvoided {
			return recommend.Reason{
				Code:     recommend.ReasonAvoidedSubgenre,
				Genre:    rule.Genre,
				Subgenre: rule.Name,
				Value:    pat.LikeRate,
			}, true
		}
	}
	return recommend.Reason{}, false
}

func (f *Filter) incompatibleNiche(m *recommend.ItemMetadata, p *recommend.TasteProfile) (recommend.Reason, bool) {
	if !f.cfg.NicheFiltering {
		return recommend.Reason{}, false
	}
	for _, niche := range f.taxonomy.MatchNiches(m) {
		if p.NicheCounts[niche] == 0 {
			return recommend.Reason{Code: recommend.ReasonNicheIncompatible, Niche: niche}, true
		}
	}
	return recommend.Reason{}, false
}

// runtimeMismatch rejects runtimes more than RuntimeMaxStdDevs deviations
// from the user's recent mean. Unknown runtimes and thin histories pass.
func (f *Filter) runtimeMismatch(m *recommend.ItemMetadata, p *recommend.TasteProfile) (recommend.Reason, bool) {
	if !f.cfg.RuntimeFiltering || m.RuntimeMinutes <= 0 || p.Runtime.Samples < f.cfg.RuntimeMinSamples {
		return recommend.Reason{}, false
	}
	std := math.Max(p.Runtime.StdDev, f.cfg.RuntimeMinStdDev)
	if std <= 0 {
		return recommend.Reason{}, false
	}
	if math.Abs(float64(m.RuntimeMinutes)-p.Runtime.Mean) > f.cfg.RuntimeMaxStdDevs*std {
		return recommend.Reason{Code: recommend.ReasonRuntimeMismatch, Value: float64(m.RuntimeMinutes)}, true
	}
	return recommend.Reason{}, false
}

// crossGenreBoost applies the strongest matching cross-genre pattern. A
// pattern matches when the candidate carries both genres and at least one of
// its shared keywords, or when the pattern recorded no keywords.
func (f *Filter) crossGenreBoost(m *recommend.ItemMetadata, p *recommend.TasteProfile) (recommend.Reason, bool) {
	for _, pat := range p.CrossGenrePatterns {
		if pat.Strength < f.cfg.CrossGenreMinStrength {
			continue
		}
		if !recommend.ContainsFold(m.Genres, pat.Pair.A) || !recommend.ContainsFold(m.Genres, pat.Pair.B) {
			continue
		}
		var matched []string
		for _, kw := range pat.SharedKeywords {
			if recommend.KeywordMatch(m.Keywords, []string{kw}) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 && len(pat.SharedKeywords) > 0 {
			continue
		}
		return recommend.Reason{
			Code:     recommend.ReasonCrossGenre,
			Genres:   []string{pat.Pair.A, pat.Pair.B},
			Keywords: matched,
			Examples: pat.ExampleItems,
			Boost:    f.cfg.CrossGenreBoost * pat.Strength,
			Value:    pat.Strength,
		}, true
	}
	return recommend.Reason{}, false
}

func (f *Filter) preferredSubgenreBoost(matched []recommend.SubgenreRule, p *recommend.TasteProfile) (recommend.Reason, bool) {
	if f.cfg.PreferredSubgenreBoost <= 0 {
		return recommend.Reason{}, false
	}
	for _, rule := range matched {
		pat, ok := p.Subgenre(rule.Genre, rule.Name)
		if ok && pat.Status == recommend.SubgenrePreferred {
			return recommend.Reason{
				Code:     recommend.ReasonPreferredSubgenre,
				Genre:    rule.Genre,
				Subgenre: rule.Name,
				Boost:    f.cfg.PreferredSubgenreBoost,
				Value:    pat.LikeRate,
			}, true
		}
	}
	return recommend.Reason{}, false
}
