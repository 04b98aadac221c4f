// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/replay"
)

// ErrNoExposureLog is returned by Replay when no exposure log is configured.
var ErrNoExposureLog = errors.New("exposure log not configured")

// ExplorationView is the inspectable learning state of a user.
type ExplorationView struct {
	State       recommend.ExplorationState  `json:"state"`
	Stored      bool                        `json:"stored"`
	Transitions []recommend.GenreTransition `json:"transitions"`
	Eligible    []recommend.GenreTransition `json:"eligible"`
	Events      []recommend.Event           `json:"events,omitempty"`
}

// Exploration returns the user's exploration state, clamped as it would be
// when serving, with the transitions that currently influence scoring.
func (e *Engine) Exploration(ctx context.Context, userID int) (*ExplorationView, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", recommend.ErrInvalidRequest)
	}
	ls, err := e.loadLearningState(ctx, userID)
	if err != nil {
		return nil, err
	}

	eligible := e.controller.Eligible(ls.graph, "")
	if eligible == nil {
		eligible = []recommend.GenreTransition{}
	}
	transitions := ls.graph.Transitions()
	if transitions == nil {
		transitions = []recommend.GenreTransition{}
	}
	return &ExplorationView{
		State:       ls.state.Exploration,
		Stored:      ls.stored,
		Transitions: transitions,
		Eligible:    eligible,
		Events:      ls.events,
	}, nil
}

// ReplayRequest asks for a counterfactual replay of one user's exposures.
type ReplayRequest struct {
	UserID   int
	Params   recommend.Overrides
	Lookback time.Duration
	AsOf     time.Time
}

// Replay evaluates a parameter change against the user's logged exposures.
// It only reads from the exposure log.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Replay(ctx context.Context, req ReplayRequest) (*replay.Report, error) {
	report, err := e.replay(ctx, req)
	delta := 0.0
	if report != nil {
		delta = report.AcceptanceDelta
	}
	metrics.RecordReplay(err, delta)
	return report, err
}

//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) replay(ctx context.Context, req ReplayRequest) (*replay.Report, error) {
	if req.UserID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", recommend.ErrInvalidRequest)
	}
	if e.exposures == nil {
		return nil, ErrNoExposureLog
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}
	lookback := req.Lookback
	if lookback <= 0 {
		lookback = e.cfg.Replay.Lookback
	}
	since := asOf.Add(-lookback)

	exposures, err := e.exposures.Exposures(ctx, req.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("load exposures: %w", err)
	}
	feedback, err := e.exposures.Feedback(ctx, req.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}

	return replay.NewEvaluator(e.cfg.Replay, e.cfg.Sources).Evaluate(replay.Input{
		UserID:    req.UserID,
		Exposures: exposures,
		Feedback:  feedback,
		Params:    req.Params,
		AsOf:      asOf,
		Lookback:  lookback,
	})
}
