// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package exploration

import (
	"sort"
	"strings"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Graph is a directed genre-transition graph. Counts only ever accumulate.
// A Graph is not safe for concurrent mutation.
type Graph struct {
	edges map[string]*recommend.GenreTransition
}

// NewGraph builds a graph from persisted transitions.
func NewGraph(transitions []recommend.GenreTransition) *Graph {
	g := &Graph{edges: make(map[string]*recommend.GenreTransition, len(transitions))}
	for _, t := range transitions {
		if t.TotalCount < 0 || t.SuccessCount < 0 {
			continue
		}
		if t.SuccessCount > t.TotalCount {
			t.SuccessCount = t.TotalCount
		}
		if existing, ok := g.edges[t.Key()]; ok {
			existing.SuccessCount += t.SuccessCount
			existing.TotalCount += t.TotalCount
			continue
		}
		edge := t
		g.edges[t.Key()] = &edge
	}
	return g
}

// Observe records one transition.
func (g *Graph) Observe(from, to string, success bool) {
	key := strings.ToLower(from) + ">" + strings.ToLower(to)
	edge, ok := g.edges[key]
	if !ok {
		edge = &recommend.GenreTransition{From: from, To: to}
		g.edges[key] = edge
	}
	edge.TotalCount++
	if success {
		edge.SuccessCount++
	}
}

// Get returns the transition from one genre to another.
func (g *Graph) Get(from, to string) (recommend.GenreTransition, bool) {
	edge, ok := g.edges[strings.ToLower(from)+">"+strings.ToLower(to)]
	if !ok {
		return recommend.GenreTransition{}, false
	}
	return *edge, true
}

// Transitions returns all transitions sorted by from, then to.
func (g *Graph) Transitions() []recommend.GenreTransition {
	out := make([]recommend.GenreTransition, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of distinct transitions.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Learn accumulates transitions from the chronologically sorted history.
// Only the most recent TransitionWindow rated films with a primary genre are
// considered, and a consecutive pair is counted only when its later film is
// in batch, so replaying the same history never double counts. Pairs with
// the same primary genre are skipped. It returns the number of transitions
// observed.
func (c *Controller) Learn(g *Graph, history []recommend.WatchRecord, batch map[int]struct{}) int {
	var window []*recommend.WatchRecord
	for i := len(history) - 1; i >= 0 && len(window) < c.cfg.TransitionWindow; i-- {
		r := &history[i]
		if r.HasRating() && r.Metadata.PrimaryGenre() != "" {
			window = append(window, r)
		}
	}
	// window is newest first; walk it oldest first.
	observed := 0
	for i := len(window) - 1; i > 0; i-- {
		prev, next := window[i], window[i-1]
		if _, ok := batch[next.ItemID]; !ok {
			continue
		}
		from, to := prev.Metadata.PrimaryGenre(), next.Metadata.PrimaryGenre()
		if strings.EqualFold(from, to) {
			continue
		}
		g.Observe(from, to, next.RatingValue() >= c.cfg.TransitionSuccessThreshold)
		observed++
	}
	return observed
}

// IsEligible reports whether a transition may influence scoring: it needs
// at least TransitionMinTotal observations and a success rate of at least
// TransitionMinSuccessRate.
func (c *Controller) IsEligible(t recommend.GenreTransition) bool {
	return t.TotalCount >= c.cfg.TransitionMinTotal && t.SuccessRate() >= c.cfg.TransitionMinSuccessRate
}

// Eligible returns the eligible transitions, optionally restricted to a
// source genre ("" for all).
func (c *Controller) Eligible(g *Graph, from string) []recommend.GenreTransition {
	var out []recommend.GenreTransition
	for _, t := range g.Transitions() {
		if from != "" && !strings.EqualFold(t.From, from) {
			continue
		}
		if c.IsEligible(t) {
			out = append(out, t)
		}
	}
	return out
}

// TransitionBoost returns the additive boost for a candidate whose genres
// follow an eligible transition from lastGenre, using the strongest such
// transition. The boost is TransitionBoostWeight times its success rate.
func (c *Controller) TransitionBoost(g *Graph, lastGenre string, m *recommend.ItemMetadata) (float64, *recommend.Reason) {
	if lastGenre == "" || !m.HasGenres() || c.cfg.TransitionBoostWeight <= 0 {
		return 0, nil
	}

	var best recommend.GenreTransition
	found := false
	for _, genre := range m.Genres {
		if strings.EqualFold(genre, lastGenre) {
			continue
		}
		t, ok := g.Get(lastGenre, genre)
		if !ok || !c.IsEligible(t) {
			continue
		}
		if !found || t.SuccessRate() > best.SuccessRate() {
			best = t
			found = true
		}
	}
	if !found {
		return 0, nil
	}

	boost := c.cfg.TransitionBoostWeight * best.SuccessRate()
	return boost, &recommend.Reason{
		Code:      recommend.ReasonGenreTransition,
		FromGenre: best.From,
		Genre:     best.To,
		Boost:     boost,
		Value:     best.SuccessRate(),
	}
}
