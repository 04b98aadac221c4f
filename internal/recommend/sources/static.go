// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package sources

import (
	"context"
	"time"

	"github.com/tomtom215/marquee/internal/recommend"
)

// StaticSource serves fixed scores. It is used for fixtures and for wiring
// precomputed offline scores into the engine.
type StaticSource struct {
	name   string
	scores map[int]float64

	// Delay simulates latency; Score honours ctx while waiting.
	Delay time.Duration

	// Err, when set, is returned from every call.
	Err error
}

var _ recommend.Source = (*StaticSource)(nil)

// NewStaticSource creates a static source. scores is copied.
func NewStaticSource(name string, scores map[int]float64) *StaticSource {
	cp := make(map[int]float64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	return &StaticSource{name: name, scores: cp}
}

// Name implements recommend.Source.
func (s *StaticSource) Name() string {
	return s.name
}

// Score implements recommend.Source.
func (s *StaticSource) Score(ctx context.Context, _ int, itemIDs []int) (map[int]float64, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[int]float64, len(itemIDs))
	for _, id := range itemIDs {
		if v, ok := s.scores[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
