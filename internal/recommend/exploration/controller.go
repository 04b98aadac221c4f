// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package exploration implements the adaptive exploration controller.
//
// The controller keeps a per-user exploration rate within configured bounds
// and a directed genre-transition graph. Both are explicit state values:
// every update takes the previous state and returns the next one, and the
// caller persists the result as a whole.
//
// A candidate is in the comfort zone when any of its genres is a top genre.
// It is exploratory when none of its genres is a top genre and none is
// avoided. Avoided genres are a known dislike, so feedback on them never
// moves the exploration rate.
package exploration

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Controller applies exploration state transitions. It is pure and safe for
// concurrent use.
type Controller struct {
	cfg recommend.ExplorationConfig
}

// NewController creates a controller.
func NewController(cfg recommend.ExplorationConfig) *Controller {
	return &Controller{cfg: cfg}
}

// Config returns the controller configuration.
func (c *Controller) Config() recommend.ExplorationConfig {
	return c.cfg
}

// InitialState returns the state for a user without stored state.
func (c *Controller) InitialState(userID int, now time.Time) recommend.ExplorationState {
	return recommend.ExplorationState{
		UserID:          userID,
		ExplorationRate: c.cfg.InitialRate,
		UpdatedAt:       now,
	}
}

// Clamp repairs a persisted state that violates its invariants. The rate is
// clamped into bounds, negative counts are reset and a non-finite average is
// zeroed. An InvalidState event is returned when anything changed.
func (c *Controller) Clamp(s recommend.ExplorationState) (recommend.ExplorationState, *recommend.Event) {
	orig := s
	switch {
	case math.IsNaN(s.ExplorationRate):
		s.ExplorationRate = c.cfg.InitialRate
	case s.ExplorationRate < c.cfg.MinRate:
		s.ExplorationRate = c.cfg.MinRate
	case s.ExplorationRate > c.cfg.MaxRate:
		s.ExplorationRate = c.cfg.MaxRate
	}
	if s.ExploratoryItemsRated < 0 {
		s.ExploratoryItemsRated = 0
		s.ExploratoryAvgRating = 0
	}
	if math.IsNaN(s.ExploratoryAvgRating) || math.IsInf(s.ExploratoryAvgRating, 0) {
		s.ExploratoryAvgRating = 0
	}
	if s == orig {
		return s, nil
	}
	return s, &recommend.Event{
		Kind:    recommend.EventInvalidState,
		Message: fmt.Sprintf("exploration state clamped for user %d", s.UserID),
		Values: map[string]float64{
			"stored_rate":  orig.ExplorationRate,
			"clamped_rate": s.ExplorationRate,
		},
	}
}

// clampRate keeps a rate inside the configured bounds.
func (c *Controller) clampRate(rate float64) float64 {
	return math.Min(c.cfg.MaxRate, math.Max(c.cfg.MinRate, rate))
}

// IsComfortZone reports whether any genre of the item is a top genre.
func IsComfortZone(m *recommend.ItemMetadata, p *recommend.TasteProfile) bool {
	if !m.HasGenres() || p == nil {
		return false
	}
	for _, g := range m.Genres {
		if p.IsTopGenre(g) {
			return true
		}
	}
	return false
}

// IsKnownAvoid reports whether any genre of the item is avoided.
func IsKnownAvoid(m *recommend.ItemMetadata, p *recommend.TasteProfile) bool {
	if !m.HasGenres() || p == nil {
		return false
	}
	for _, g := range m.Genres {
		if p.IsAvoidGenre(g) {
			return true
		}
	}
	return false
}

// IsExploratory reports whether none of the item's genres is a top or
// avoided genre. Items without genres are never exploratory.
func IsExploratory(m *recommend.ItemMetadata, p *recommend.TasteProfile) bool {
	return m.HasGenres() && p != nil && !IsComfortZone(m, p) && !IsKnownAvoid(m, p)
}

// Classify marks exploratory candidates in place and adds an exploration
// reason to each. It returns the number of exploratory candidates.
func Classify(items []recommend.ScoredCandidate, p *recommend.TasteProfile) int {
	n := 0
	for i := range items {
		if !IsExploratory(items[i].Metadata, p) {
			continue
		}
		items[i].Exploratory = true
		items[i].Reasons = append(items[i].Reasons, recommend.Reason{
			Code:   recommend.ReasonExploration,
			Genres: items[i].Metadata.Genres,
		})
		n++
	}
	return n
}

// ApplyBatch updates the state after a batch of new ratings.
//
// history is the user's full rated history including the batch; the most
// recent RecentWindow rated films are inspected and the exploratory ones
// (judged against profile, built before the batch) are averaged. The rate
// moves up one step when the average reaches LikesThreshold and down one
// step when it falls below DislikesThreshold, always within bounds. The
// cumulative exploratory mean is advanced only by exploratory ratings that
// belong to the batch, so re-inspected films are never counted twice.
// UpdatedAt is set to now whenever the rate or the cumulative mean changes.
//
//nolint:gocritic // rangeValCopy: WatchRecord passed by value in range, acceptable for clarity
func (c *Controller) ApplyBatch(
	s recommend.ExplorationState,
	p *recommend.TasteProfile,
	history []recommend.WatchRecord,
	batch map[int]struct{},
	now time.Time,
) (recommend.ExplorationState, recommend.Events) {
	var events recommend.Events

	var recent []recommend.WatchRecord
	for i := len(history) - 1; i >= 0 && len(recent) < c.cfg.RecentWindow; i-- {
		if history[i].HasRating() {
			recent = append(recent, history[i])
		}
	}

	var sum float64
	var n int
	var batchSum float64
	var batchN int
	for _, r := range recent {
		if !IsExploratory(r.Metadata, p) {
			continue
		}
		sum += r.RatingValue()
		n++
		if _, ok := batch[r.ItemID]; ok {
			batchSum += r.RatingValue()
			batchN++
		}
	}

	changed := false
	if batchN > 0 {
		total := s.ExploratoryItemsRated + batchN
		s.ExploratoryAvgRating = (s.ExploratoryAvgRating*float64(s.ExploratoryItemsRated) + batchSum) / float64(total)
		s.ExploratoryItemsRated = total
		changed = true
	}
	if n == 0 {
		if changed {
			s.UpdatedAt = now
		}
		return s, events
	}

	avg := sum / float64(n)
	prev := s.ExplorationRate
	switch {
	case avg >= c.cfg.LikesThreshold:
		s.ExplorationRate = c.clampRate(s.ExplorationRate + c.cfg.Step)
	case avg < c.cfg.DislikesThreshold:
		s.ExplorationRate = c.clampRate(s.ExplorationRate - c.cfg.Step)
	}
	if changed || s.ExplorationRate != prev {
		s.UpdatedAt = now
	}

	events.Add(recommend.Event{
		Kind: recommend.EventExplorationUpdated,
		Values: map[string]float64{
			"previous_rate":       prev,
			"rate":                s.ExplorationRate,
			"exploratory_average": avg,
			"exploratory_rated":   float64(n),
		},
	})
	return s, events
}

// ApplyNegativeFeedback applies the smaller penalty step for a rejected
// exploratory candidate. Known avoids, comfort-zone items and items without
// metadata leave the state unchanged. The second return value reports
// whether the penalty was applied.
func (c *Controller) ApplyNegativeFeedback(
	s recommend.ExplorationState,
	itemID int,
	m *recommend.ItemMetadata,
	p *recommend.TasteProfile,
	now time.Time,
) (recommend.ExplorationState, bool, recommend.Event) {
	switch {
	case !m.HasGenres():
		return s, false, recommend.Event{Kind: recommend.EventFeedbackIgnored, ItemID: itemID, Message: "metadata missing"}
	case IsKnownAvoid(m, p):
		return s, false, recommend.Event{Kind: recommend.EventFeedbackIgnored, ItemID: itemID, Message: "known avoid"}
	case !IsExploratory(m, p):
		return s, false, recommend.Event{Kind: recommend.EventFeedbackIgnored, ItemID: itemID, Message: "comfort zone"}
	}

	prev := s.ExplorationRate
	s.ExplorationRate = c.clampRate(s.ExplorationRate - c.cfg.Penalty)
	s.UpdatedAt = now
	return s, true, recommend.Event{
		Kind:   recommend.EventExplorationPenalty,
		ItemID: itemID,
		Values: map[string]float64{"previous_rate": prev, "rate": s.ExplorationRate},
	}
}

// ReservedSlots returns how many of k slots are reserved for exploratory
// picks at the given rate.
func ReservedSlots(rate float64, k int) int {
	if k <= 0 || rate <= 0 {
		return 0
	}
	n := int(math.Round(rate * float64(k)))
	return min(n, k)
}
