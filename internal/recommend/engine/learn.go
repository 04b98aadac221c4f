// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
)

// Learn applies new ratings and feedback for one user.
//
// Everything is computed before anything is written: the profile before the
// batch judges which ratings were exploratory, transitions are learned from
// the merged history, and negative feedback is judged against the profile
// after the batch. The ratings and the learning state are then committed in
// one store transaction, so a failed or cancelled commit leaves both the
// history and the state as they were and the request can be retried.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Learn(ctx context.Context, req recommend.LearnRequest) error {
	e.learnCount.Add(1)
	logger := e.logger.With().Int("user_id", req.UserID).Logger()

	state, observed, err := e.learn(ctx, req, logger)
	switch {
	case err == nil:
		metrics.RecordLearn("ok", state.Exploration.ExplorationRate, observed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.RecordLearn("cancelled", 0, 0)
	default:
		metrics.RecordLearn("error", 0, 0)
	}
	return err
}

//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) learn(ctx context.Context, req recommend.LearnRequest, logger zerolog.Logger) (recommend.LearningState, int, error) {
	if err := e.validateLearn(&req); err != nil {
		return recommend.LearningState{}, 0, err
	}

	ctx, cancel := e.requestContext(ctx)
	defer cancel()

	var events recommend.Events
	now := e.now()

	history, err := e.store.WatchHistory(ctx, req.UserID)
	if err != nil {
		return recommend.LearningState{}, 0, fmt.Errorf("load watch history: %w", err)
	}
	ls, err := e.loadLearningState(ctx, req.UserID)
	if err != nil {
		return recommend.LearningState{}, 0, err
	}
	events = append(events, ls.events...)
	state, graph := ls.state, ls.graph

	watched := make(map[int]struct{}, len(history))
	for i := range history {
		watched[history[i].ItemID] = struct{}{}
	}
	// A rating without a watch time is a first viewing now, or a rating
	// update for a film already in the history.
	ratings := make([]recommend.WatchRecord, len(req.Ratings))
	copy(ratings, req.Ratings)
	for i := range ratings {
		if _, ok := watched[ratings[i].ItemID]; !ok && ratings[i].WatchedAt.IsZero() {
			ratings[i].WatchedAt = now
		}
	}

	if err := e.attachHistoryMetadata(ctx, history); err != nil {
		return recommend.LearningState{}, 0, err
	}
	if err := e.attachHistoryMetadata(ctx, ratings); err != nil {
		return recommend.LearningState{}, 0, err
	}

	cfg := e.cfg
	before, profileEvents := e.buildProfile(cfg, req.UserID, history)
	events = append(events, profileEvents...)

	merged := mergeHistory(history, ratings)
	batch := make(map[int]struct{}, len(ratings))
	for i := range ratings {
		batch[ratings[i].ItemID] = struct{}{}
	}

	observed := 0
	if len(ratings) > 0 {
		var batchEvents recommend.Events
		state.Exploration, batchEvents = e.controller.ApplyBatch(state.Exploration, before, merged, batch, now)
		events = append(events, batchEvents...)

		observed = e.controller.Learn(graph, merged, batch)
		if observed > 0 {
			events.Add(recommend.Event{
				Kind:   recommend.EventTransitionsLearned,
				Values: map[string]float64{"observed": float64(observed), "transitions": float64(graph.Len())},
			})
		}
	}

	after := before
	if len(ratings) > 0 {
		after, _ = e.buildProfile(cfg, req.UserID, merged)
	}

	feedback, fbEvents, err := e.applyFeedback(ctx, &state, req, merged, after)
	if err != nil {
		return recommend.LearningState{}, 0, err
	}
	events = append(events, fbEvents...)

	state.UserID = req.UserID
	state.Exploration.UserID = req.UserID
	state.Transitions = graph.Transitions()

	if err := ctx.Err(); err != nil {
		e.emit(logger, events)
		return recommend.LearningState{}, 0, err
	}

	if err := e.store.CommitLearning(ctx, req.UserID, ratings, state); err != nil {
		return recommend.LearningState{}, 0, fmt.Errorf("commit learning: %w", err)
	}
	e.invalidateProfiles(req.UserID)

	if snap, ok := e.store.(profileSnapshotter); ok && after != nil {
		if err := snap.SaveProfileSnapshot(ctx, after); err != nil {
			logger.Debug().Err(err).Msg("profile snapshot not saved")
		}
	}
	if e.exposures != nil && len(feedback) > 0 {
		if err := e.exposures.RecordFeedback(ctx, feedback); err != nil {
			events.Add(recommend.Event{Kind: recommend.EventExposureLogFailed, Message: err.Error()})
		}
	}

	e.emit(logger, events)
	logger.Debug().
		Int("ratings", len(ratings)).
		Int("feedback", len(feedback)).
		Float64("exploration_rate", state.Exploration.ExplorationRate).
		Int("transitions_observed", observed).
		Msg("learning update applied")

	return state, observed, nil
}

// validateLearn rejects malformed learning requests.
func (e *Engine) validateLearn(req *recommend.LearnRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", recommend.ErrInvalidRequest)
	}
	for i := range req.Ratings {
		r := &req.Ratings[i]
		if r.ItemID <= 0 {
			return fmt.Errorf("%w: rating %d has no item id", recommend.ErrInvalidRequest, i)
		}
		if r.Rating != nil && (*r.Rating < 0 || *r.Rating > e.cfg.Profile.RatingScale) {
			return fmt.Errorf("%w: rating for item %d out of range", recommend.ErrInvalidRequest, r.ItemID)
		}
	}
	for i := range req.Feedback {
		f := &req.Feedback[i]
		if f.ItemID <= 0 {
			return fmt.Errorf("%w: feedback %d has no item id", recommend.ErrInvalidRequest, i)
		}
		if f.Polarity != recommend.PolarityPositive && f.Polarity != recommend.PolarityNegative {
			return fmt.Errorf("%w: feedback polarity %q", recommend.ErrInvalidRequest, f.Polarity)
		}
	}
	return nil
}

// applyFeedback stamps feedback records and applies the negative-feedback
// penalty for exploratory rejections. Metadata comes from the merged history
// when the item was watched, otherwise from the resolver.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) applyFeedback(
	ctx context.Context,
	state *recommend.LearningState,
	req recommend.LearnRequest,
	history []recommend.WatchRecord,
	taste *recommend.TasteProfile,
) ([]recommend.Feedback, recommend.Events, error) {
	if len(req.Feedback) == 0 {
		return nil, nil, nil
	}
	var events recommend.Events
	now := e.now()

	known := make(map[int]*recommend.ItemMetadata, len(history))
	for i := range history {
		if history[i].Metadata != nil {
			known[history[i].ItemID] = history[i].Metadata
		}
	}
	var missing []int
	for i := range req.Feedback {
		f := &req.Feedback[i]
		if f.Polarity == recommend.PolarityNegative && known[f.ItemID] == nil {
			missing = append(missing, f.ItemID)
		}
	}
	resolved, err := e.resolveMetadata(ctx, missing)
	if err != nil {
		return nil, nil, err
	}
	for id, m := range resolved {
		known[id] = m
	}

	out := make([]recommend.Feedback, len(req.Feedback))
	for i, f := range req.Feedback {
		f.UserID = req.UserID
		if f.At.IsZero() {
			f.At = now
		}
		out[i] = f

		if f.Polarity != recommend.PolarityNegative {
			continue
		}
		var ev recommend.Event
		state.Exploration, _, ev = e.controller.ApplyNegativeFeedback(state.Exploration, f.ItemID, known[f.ItemID], taste, now)
		events.Add(ev)
	}
	return out, events, nil
}

// mergeHistory folds ratings into history the way the store does and
// returns the result in chronological order. history is not modified.
func mergeHistory(history, ratings []recommend.WatchRecord) []recommend.WatchRecord {
	out := make([]recommend.WatchRecord, len(history), len(history)+len(ratings))
	copy(out, history)
	index := make(map[int]int, len(out))
	for i := range out {
		index[out[i].ItemID] = i
	}
	for i := range ratings {
		r := ratings[i]
		if j, ok := index[r.ItemID]; ok {
			out[j] = recommend.MergeWatch(out[j], r)
			continue
		}
		index[r.ItemID] = len(out)
		out = append(out, r)
	}
	recommend.SortWatchRecords(out)
	return out
}
