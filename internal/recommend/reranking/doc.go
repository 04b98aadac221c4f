// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package reranking implements post-processing algorithms for recommendation diversity.
//
// Reranking is applied after aggregation, filtering and boosting:
//
//	Sources -> Consensus -> Filter/Boosts -> Reranker -> Exploration quota -> Final list
//	(raw)      (relevance)                   (diversity)
//
// # Maximal Marginal Relevance (MMR)
//
//   - Balances relevance with diversity
//   - Penalizes items similar to already-selected items
//   - Lambda is the diversity strength: 0 reproduces relevance order exactly
//
// Similarity is a weighted Jaccard overlap over genres, keywords and cast.
// Only components present on both items count, so a missing cast list does
// not dilute an exact genre match.
//
// # Interface
//
// All rerankers implement the recommend.Reranker interface:
//
//	type Reranker interface {
//	    Name() string
//	    Rerank(ctx context.Context, items []ScoredCandidate, k int) []ScoredCandidate
//	}
//
// # Determinism
//
// MMR selection is sequential and never parallelized. Ties are broken by
// higher relevance, then lower item id.
package reranking
