// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package recommend defines the shared model of the personalization engine:
// data types, configuration, error taxonomy, structured events, the
// subgenre/niche taxonomy and the collaborator interfaces.
//
// # Architecture
//
// A recommendation request flows through a fixed pipeline, each stage in
// its own package:
//
//   - profile: builds a TasteProfile from watch history
//   - consensus: collects per-source scores and aggregates them
//   - filter: rejects avoided subgenres, incompatible niches and runtimes,
//     and applies cross-genre and preferred-subgenre boosts
//   - exploration: classifies exploratory candidates, learns the
//     exploration rate and a genre-transition graph
//   - reranking: MMR diversity reranking
//   - replay: offline counterfactual evaluation of parameter changes
//
// The engine package wires the stages to the collaborators defined here
// (Source, MetadataResolver, HistoryStore, ExposureLog).
//
// # Design Principles
//
//   - Deterministic: identical inputs produce identical rankings
//   - Pure stages: stages return Events instead of logging or writing
//   - Bounded: the exploration rate never leaves its configured bounds
//   - Tunable: every threshold is a Config field
//
// # Usage
//
//	cfg := recommend.DefaultConfig()
//	eng, err := engine.New(cfg, engine.Dependencies{
//	    Store:     store,
//	    Sources:   []recommend.Source{tmdb, trakt},
//	    Metadata:  resolver,
//	    Exposures: exposureLog,
//	}, logger)
//
//	resp, err := eng.Recommend(ctx, recommend.Request{
//	    UserID:     userID,
//	    Candidates: pool,
//	    K:          20,
//	})
package recommend
