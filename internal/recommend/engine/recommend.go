// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/consensus"
	"github.com/tomtom215/marquee/internal/recommend/exploration"
	"github.com/tomtom215/marquee/internal/recommend/filter"
	"github.com/tomtom215/marquee/internal/recommend/reranking"
)

// Recommend produces an ordered suggestion list for the request.
//
// Failures local to one source or one candidate are absorbed into
// Response.Events. An empty pool yields an empty list with
// Metadata.EmptyReason set. Only history store failures, invalid requests
// and context cancellation are returned as errors.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error) {
	start := time.Now()
	e.requestCount.Add(1)

	if req.UserID <= 0 {
		e.errorCount.Add(1)
		metrics.RecordRecommend("error", time.Since(start), len(req.Candidates), 0, 0, 0, 0)
		return nil, fmt.Errorf("%w: user id must be positive", recommend.ErrInvalidRequest)
	}

	req = e.prepareRequest(req)
	cfg := e.cfg.WithOverrides(req.Overrides)
	logger := e.createRequestLogger(req)
	logger.Debug().Int("candidates", len(req.Candidates)).Int("k", req.K).Msg("processing recommendation request")

	ctx, cancel := e.requestContext(ctx)
	defer cancel()
	ctx = logging.ContextWithRequestID(ctx, req.RequestID)

	resp, err := e.recommend(ctx, cfg, req, logger)
	if err != nil {
		e.errorCount.Add(1)
		metrics.RecordRecommend("error", time.Since(start), len(req.Candidates), 0, 0, 0, 0)
		return nil, err
	}

	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
	outcome := "ok"
	if len(resp.Suggestions) == 0 {
		outcome = "empty"
		e.emptyCount.Add(1)
	}
	metrics.RecordRecommend(outcome, time.Since(start),
		resp.Metadata.TotalCandidates, resp.Metadata.Scored, resp.Metadata.Filtered,
		len(resp.Suggestions), resp.Metadata.ExploratorySlots)

	logger.Debug().
		Int("returned", len(resp.Suggestions)).
		Int("events", len(resp.Events)).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")

	return resp, nil
}

// prepareRequest applies defaults and generates a request ID if needed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) prepareRequest(req recommend.Request) recommend.Request {
	if req.RequestID == "" {
		req.RequestID = logging.GenerateRequestID()
	}
	if req.K <= 0 {
		req.K = e.cfg.Limits.DefaultK
	}
	if req.K > e.cfg.Limits.MaxK {
		req.K = e.cfg.Limits.MaxK
	}
	return req
}

// createRequestLogger creates a logger with request context.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) createRequestLogger(req recommend.Request) zerolog.Logger {
	return e.logger.With().
		Str("request_id", req.RequestID).
		Int("user_id", req.UserID).
		Logger()
}

//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommend(ctx context.Context, cfg *recommend.Config, req recommend.Request, logger zerolog.Logger) (*recommend.Response, error) {
	var events recommend.Events
	resp := &recommend.Response{
		Suggestions: []recommend.Suggestion{},
		Metadata: recommend.ResponseMetadata{
			RequestID: req.RequestID,
			UserID:    req.UserID,
			MMRLambda: cfg.Diversity.MMRLambda,
			Timestamp: e.now(),
		},
	}
	finish := func() *recommend.Response {
		e.emit(logger, events)
		resp.Events = events
		return resp
	}

	history, err := e.store.WatchHistory(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load watch history: %w", err)
	}
	if err := e.attachHistoryMetadata(ctx, history); err != nil {
		return nil, err
	}
	taste, profileEvents := e.buildProfile(cfg, req.UserID, history)
	events = append(events, profileEvents...)

	ls, err := e.loadLearningState(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	events = append(events, ls.events...)
	resp.Metadata.ExplorationRate = ls.state.Exploration.ExplorationRate

	candidates := e.prepareCandidates(req.Candidates, history, cfg.Limits.MaxCandidates)
	resp.Metadata.TotalCandidates = len(candidates)
	if len(candidates) == 0 {
		e.markEmpty(resp, &events)
		return finish(), nil
	}

	collection, err := e.gather(ctx, cfg, req.UserID, candidates)
	if err != nil {
		return nil, err
	}
	events = append(events, collection.Events...)
	resp.Metadata.SourcesUsed = collection.Responded
	resp.Metadata.SourcesFailed = collection.Failed
	for i := range candidates {
		if !candidates[i].Metadata.HasGenres() {
			events.Add(recommend.Event{
				Kind:    recommend.EventMetadataMissing,
				ItemID:  candidates[i].ItemID,
				Message: recommend.ErrMetadataMissing.Error(),
			})
		}
	}

	scored, aggEvents := consensus.NewAggregator(cfg.Sources, cfg.Consensus).Aggregate(candidates)
	events = append(events, aggEvents...)
	resp.Metadata.Scored = len(scored)
	if len(scored) == 0 {
		e.markEmpty(resp, &events)
		return finish(), nil
	}

	kept, filterEvents := filter.New(cfg.Filter, cfg.Taxonomy).Apply(scored, taste)
	events = append(events, filterEvents...)
	resp.Metadata.Filtered = len(scored) - len(kept)
	if len(kept) == 0 {
		e.markEmpty(resp, &events)
		return finish(), nil
	}

	e.applyTransitionBoosts(kept, ls.graph, taste)
	e.capBoosts(cfg, kept, &events)
	consensus.SortByScore(kept)
	exploration.Classify(kept, taste)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reserved := 0
	if cfg.Exploration.Enabled {
		reserved = exploration.ReservedSlots(ls.state.Exploration.ExplorationRate, req.K)
	}
	mmr := reranking.NewMMR(cfg.Diversity)
	final := e.selectWithQuota(ctx, mmr, kept, req.K, reserved)

	resp.Metadata.MMRLambda = mmr.Lambda()
	resp.Suggestions = make([]recommend.Suggestion, len(final))
	exposures := make([]recommend.SuggestionExposure, len(final))
	for i := range final {
		c := &final[i]
		rank := i + 1
		if c.Exploratory {
			resp.Metadata.ExploratorySlots++
		}
		resp.Suggestions[i] = recommend.Suggestion{
			ItemID:         c.ItemID,
			Title:          c.Title,
			Score:          c.Score,
			ConsensusLevel: c.Level,
			Sources:        c.Sources,
			Reasons:        c.Reasons,
			DiversityRank:  rank,
			Exploratory:    c.Exploratory,
		}
		exposures[i] = recommend.SuggestionExposure{
			ID:             uuid.NewString(),
			RequestID:      req.RequestID,
			UserID:         req.UserID,
			ItemID:         c.ItemID,
			ShownAt:        resp.Metadata.Timestamp,
			BaseScore:      c.Score,
			ConsensusLevel: c.Level,
			Sources:        c.Sources,
			MMRLambda:      mmr.Lambda(),
			DiversityRank:  rank,
			Exploratory:    c.Exploratory,
		}
	}

	if e.exposures != nil && len(exposures) > 0 {
		if err := e.exposures.RecordExposures(ctx, exposures); err != nil {
			events.Add(recommend.Event{
				Kind:    recommend.EventExposureLogFailed,
				Message: err.Error(),
			})
		}
	}

	return finish(), nil
}

// markEmpty records an empty result. It is not an error.
func (e *Engine) markEmpty(resp *recommend.Response, events *recommend.Events) {
	resp.Metadata.EmptyReason = recommend.ErrNoCandidates.Error()
	events.Add(recommend.Event{Kind: recommend.EventNoCandidates, Message: resp.Metadata.EmptyReason})
}

// prepareCandidates drops invalid ids, duplicates and already watched items,
// and truncates the pool. The first occurrence of an id wins, but source
// scores from later duplicates are merged into it.
//
//nolint:gocritic // rangeValCopy: Candidate passed by value in range, acceptable for clarity
func (e *Engine) prepareCandidates(in []recommend.Candidate, history []recommend.WatchRecord, limit int) []recommend.Candidate {
	watched := make(map[int]struct{}, len(history))
	for i := range history {
		watched[history[i].ItemID] = struct{}{}
	}

	index := make(map[int]int, len(in))
	out := make([]recommend.Candidate, 0, len(in))
	for _, c := range in {
		if c.ItemID <= 0 {
			continue
		}
		if _, ok := watched[c.ItemID]; ok {
			continue
		}
		if i, ok := index[c.ItemID]; ok {
			for name, s := range c.SourceScores {
				if _, seen := out[i].SourceScores[name]; !seen {
					if out[i].SourceScores == nil {
						out[i].SourceScores = map[string]float64{}
					}
					out[i].SourceScores[name] = s
				}
			}
			if out[i].Metadata == nil {
				out[i].Metadata = c.Metadata
			}
			continue
		}
		if limit > 0 && len(out) >= limit {
			continue
		}
		c.SourceScores = maps.Clone(c.SourceScores)
		index[c.ItemID] = len(out)
		out = append(out, c)
	}
	return out
}

// gather fetches source scores and missing metadata concurrently and merges
// them into candidates. Scores supplied with the request take precedence
// over fetched scores from a source of the same name.
func (e *Engine) gather(ctx context.Context, cfg *recommend.Config, userID int, candidates []recommend.Candidate) (*consensus.Collection, error) {
	ids := make([]int, len(candidates))
	var missing []int
	for i := range candidates {
		ids[i] = candidates[i].ItemID
		if candidates[i].Metadata == nil {
			missing = append(missing, candidates[i].ItemID)
		}
	}

	var (
		collection *consensus.Collection
		resolved   map[int]*recommend.ItemMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		collection, err = e.collector(cfg).Collect(gctx, userID, ids)
		return err
	})
	g.Go(func() error {
		var err error
		resolved, err = e.resolveMetadata(gctx, missing)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range candidates {
		c := &candidates[i]
		if c.Metadata == nil {
			c.Metadata = resolved[c.ItemID]
		}
		for name, s := range collection.Scores[c.ItemID] {
			if _, ok := c.SourceScores[name]; ok {
				continue
			}
			if c.SourceScores == nil {
				c.SourceScores = make(map[string]float64, len(collection.Scores[c.ItemID]))
			}
			c.SourceScores[name] = s
		}
	}
	return collection, nil
}

// applyTransitionBoosts adds the eligible genre-transition boost from the
// user's most recent genre.
func (e *Engine) applyTransitionBoosts(items []recommend.ScoredCandidate, graph *exploration.Graph, taste *recommend.TasteProfile) {
	if taste == nil || taste.LastGenre == "" || graph.Len() == 0 {
		return
	}
	for i := range items {
		boost, reason := e.controller.TransitionBoost(graph, taste.LastGenre, items[i].Metadata)
		if reason == nil {
			continue
		}
		items[i].Boost += boost
		items[i].Reasons = append(items[i].Reasons, *reason)
	}
}

// capBoosts bounds the total boost per candidate and recomputes scores.
func (e *Engine) capBoosts(cfg *recommend.Config, items []recommend.ScoredCandidate, events *recommend.Events) {
	limit := cfg.Boosts.MaxTotal
	for i := range items {
		c := &items[i]
		if c.Boost > limit {
			events.Add(recommend.Event{
				Kind:   recommend.EventBoostCapped,
				ItemID: c.ItemID,
				Values: map[string]float64{"boost": c.Boost, "cap": limit},
			})
			c.Boost = limit
		}
		c.Score = c.Consensus + c.Boost
	}
}

// selectWithQuota picks k items in MMR order, reserving up to reserved
// positions for exploratory candidates. When either group runs short the
// other fills the remaining slots. The MMR order is grown until both quotas
// can be met, relying on greedy selection producing stable prefixes.
func (e *Engine) selectWithQuota(ctx context.Context, mmr *reranking.MMR, items []recommend.ScoredCandidate, k, reserved int) []recommend.ScoredCandidate {
	var exploratory int
	for i := range items {
		if items[i].Exploratory {
			exploratory++
		}
	}
	comfort := len(items) - exploratory

	wantExplore := min(reserved, exploratory)
	wantComfort := min(k-wantExplore, comfort)
	wantExplore = min(k-wantComfort, exploratory)

	depth := min(k, len(items))
	for {
		order := mmr.Rerank(ctx, items, depth)
		picked, ok := takeQuota(order, wantExplore, wantComfort)
		if ok || depth >= len(items) {
			return picked
		}
		depth = min(depth*2, len(items))
	}
}

// takeQuota walks order and keeps items while their group has room. It
// reports whether both quotas were met.
func takeQuota(order []recommend.ScoredCandidate, explore, comfort int) ([]recommend.ScoredCandidate, bool) {
	out := make([]recommend.ScoredCandidate, 0, explore+comfort)
	for i := range order {
		if order[i].Exploratory {
			if explore == 0 {
				continue
			}
			explore--
		} else {
			if comfort == 0 {
				continue
			}
			comfort--
		}
		out = append(out, order[i])
	}
	return out, explore == 0 && comfort == 0
}
