// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package engine orchestrates serving and learning.
//
// The pipeline stages (profile, consensus, filter, reranking, exploration)
// are pure; the engine owns every side effect around them: loading history
// and learning state, fanning out to scoring sources and the metadata
// resolver, writing exposures, persisting learning state, and emitting the
// structured events the stages return as log lines and metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/recommend/consensus"
	"github.com/tomtom215/marquee/internal/recommend/exploration"
	"github.com/tomtom215/marquee/internal/recommend/profile"
)

// metadataBatchSize is the number of ids sent to the resolver per call.
const metadataBatchSize = 100

// Dependencies are the collaborators the engine needs. Store is required;
// the others may be nil.
type Dependencies struct {
	// Store holds watch history and learning state.
	Store recommend.HistoryStore

	// Sources are the scoring sources queried for every request.
	Sources []recommend.Source

	// Metadata resolves metadata for items that arrive without it.
	Metadata recommend.MetadataResolver

	// Exposures receives served suggestions and feedback. Serving never
	// fails because of it.
	Exposures recommend.ExposureLog

	// Now overrides the clock (tests).
	Now func() time.Time
}

// profileSnapshotter is implemented by stores that keep the last built
// profile for inspection.
type profileSnapshotter interface {
	SaveProfileSnapshot(ctx context.Context, p *recommend.TasteProfile) error
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Requests     int64       `json:"requests"`
	Errors       int64       `json:"errors"`
	Empty        int64       `json:"empty"`
	Learns       int64       `json:"learns"`
	ProfileCache cache.Stats `json:"profile_cache"`
}

// Engine serves recommendations and applies learning updates.
// It is safe for concurrent use.
type Engine struct {
	cfg    *recommend.Config
	logger zerolog.Logger

	store     recommend.HistoryStore
	sources   []recommend.Source
	metadata  recommend.MetadataResolver
	exposures recommend.ExposureLog
	now       func() time.Time

	controller *exploration.Controller

	// profiles caches built taste profiles by user and history fingerprint.
	profiles *cache.LRU[cache.ProfileKey, *recommend.TasteProfile]

	requestCount atomic.Int64
	errorCount   atomic.Int64
	emptyCount   atomic.Int64
	learnCount   atomic.Int64
}

// New creates an engine. cfg is validated and copied.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg *recommend.Config, deps Dependencies, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = recommend.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("engine requires a history store")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	cfg = cfg.Clone()
	e := &Engine{
		cfg:        cfg,
		logger:     logger.With().Str("component", "engine").Logger(),
		store:      deps.Store,
		sources:    deps.Sources,
		metadata:   deps.Metadata,
		exposures:  deps.Exposures,
		now:        now,
		controller: exploration.NewController(cfg.Exploration),
	}
	if cfg.Cache.Enabled {
		e.profiles = cache.NewLRU[cache.ProfileKey, *recommend.TasteProfile](cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}

	names := make([]string, len(deps.Sources))
	for i, s := range deps.Sources {
		names[i] = s.Name()
	}
	e.logger.Info().
		Strs("sources", names).
		Bool("metadata_resolver", deps.Metadata != nil).
		Bool("exposure_log", deps.Exposures != nil).
		Bool("profile_cache", e.profiles != nil).
		Msg("engine initialized")

	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *recommend.Config {
	return e.cfg.Clone()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Requests: e.requestCount.Load(),
		Errors:   e.errorCount.Load(),
		Empty:    e.emptyCount.Load(),
		Learns:   e.learnCount.Load(),
	}
	if e.profiles != nil {
		s.ProfileCache = e.profiles.Stats()
	}
	return s
}

// CleanupProfiles drops expired profile cache entries.
func (e *Engine) CleanupProfiles() int {
	if e.profiles == nil {
		return 0
	}
	return e.profiles.CleanupExpired()
}

// buildProfile returns the user's taste profile, from cache when the history
// is unchanged. history must already carry resolved metadata.
func (e *Engine) buildProfile(cfg *recommend.Config, userID int, history []recommend.WatchRecord) (*recommend.TasteProfile, recommend.Events) {
	key := cache.ProfileKey{UserID: userID, Fingerprint: profile.Fingerprint(history)}
	if e.profiles != nil {
		if p, ok := e.profiles.Get(key); ok {
			return p, nil
		}
	}

	p, events := profile.NewBuilder(cfg.Profile, cfg.Taxonomy).Build(userID, history)
	if e.profiles != nil {
		e.profiles.Add(key, p)
	}
	return p, events
}

// invalidateProfiles drops every cached profile of a user.
func (e *Engine) invalidateProfiles(userID int) {
	if e.profiles == nil {
		return
	}
	e.profiles.RemoveFunc(func(k cache.ProfileKey) bool { return k.UserID == userID })
}

// learned is a user's learning state as loaded for one operation.
type learned struct {
	state  recommend.LearningState
	graph  *exploration.Graph
	events recommend.Events
	stored bool
}

// loadLearningState loads and repairs the user's learning state. Users
// without stored state start from the initial exploration rate.
func (e *Engine) loadLearningState(ctx context.Context, userID int) (*learned, error) {
	state, found, err := e.store.LoadLearningState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load learning state: %w", err)
	}
	if !found {
		return &learned{
			state: recommend.LearningState{
				UserID:      userID,
				Exploration: e.controller.InitialState(userID, e.now()),
			},
			graph: exploration.NewGraph(nil),
		}, nil
	}

	out := &learned{stored: true}
	state.UserID = userID
	state.Exploration.UserID = userID
	repaired, ev := e.controller.Clamp(state.Exploration)
	if ev != nil {
		out.events.Add(*ev)
	}
	state.Exploration = repaired
	out.state = state
	out.graph = exploration.NewGraph(state.Transitions)
	return out, nil
}

// resolveMetadata fetches metadata for the given ids in concurrent batches.
// Resolver failures are absorbed: the affected ids simply stay unresolved.
func (e *Engine) resolveMetadata(ctx context.Context, ids []int) (map[int]*recommend.ItemMetadata, error) {
	out := make(map[int]*recommend.ItemMetadata, len(ids))
	if e.metadata == nil || len(ids) == 0 {
		return out, nil
	}

	batches := make([][]int, 0, (len(ids)+metadataBatchSize-1)/metadataBatchSize)
	for start := 0; start < len(ids); start += metadataBatchSize {
		batches = append(batches, ids[start:min(start+metadataBatchSize, len(ids))])
	}
	results := make([]map[int]*recommend.ItemMetadata, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.Limits.MetadataConcurrency))
	for i, batch := range batches {
		g.Go(func() error {
			resolved, err := e.metadata.Resolve(gctx, batch)
			if err != nil {
				e.logger.Debug().Err(err).Int("items", len(batch)).Msg("metadata batch unresolved")
				return nil
			}
			results[i] = resolved
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, resolved := range results {
		for id, m := range resolved {
			if m != nil {
				out[id] = m
			}
		}
	}
	return out, nil
}

// attachHistoryMetadata resolves metadata for history records that lack it.
func (e *Engine) attachHistoryMetadata(ctx context.Context, history []recommend.WatchRecord) error {
	var missing []int
	for i := range history {
		if history[i].Metadata == nil {
			missing = append(missing, history[i].ItemID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	resolved, err := e.resolveMetadata(ctx, missing)
	if err != nil {
		return err
	}
	for i := range history {
		if history[i].Metadata == nil {
			history[i].Metadata = resolved[history[i].ItemID]
		}
	}
	return nil
}

// emit logs and counts events. Absorbed failures log at warn.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func (e *Engine) emit(logger zerolog.Logger, events recommend.Events) {
	for i := range events {
		ev := &events[i]
		metrics.RecordEvent(string(ev.Kind))

		var le *zerolog.Event
		if ev.Warn() {
			le = logger.Warn()
		} else {
			le = logger.Debug()
		}
		if ev.Source != "" {
			le = le.Str("source", ev.Source)
		}
		if ev.ItemID != 0 {
			le = le.Int("item_id", ev.ItemID)
		}
		if ev.Reason != nil {
			le = le.Str("reason", string(ev.Reason.Code))
		}
		if len(ev.Values) > 0 {
			keys := make([]string, 0, len(ev.Values))
			for k := range ev.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			d := zerolog.Dict()
			for _, k := range keys {
				d = d.Float64(k, ev.Values[k])
			}
			le = le.Dict("values", d)
		}
		le.Str("event", string(ev.Kind)).Msg(ev.Message)
	}
}

// requestContext applies the configured request timeout.
func (e *Engine) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Limits.RequestTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.Limits.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// collector builds a source collector for a request configuration.
func (e *Engine) collector(cfg *recommend.Config) *consensus.Collector {
	return consensus.NewCollector(e.sources, cfg.Sources)
}
