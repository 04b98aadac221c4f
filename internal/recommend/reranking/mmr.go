// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package reranking

import (
	"context"
	"strings"

	"github.com/tomtom215/marquee/internal/recommend"
)

// maxSuggestions caps k before any allocation.
const maxSuggestions = 10000

// tieEpsilon is the tolerance for treating two MMR scores as equal.
const tieEpsilon = 1e-12

// MMR greedily builds the suggestion list, each step taking the film that
// maximizes
//
//	(1-lambda) * score(i) - lambda * max sim(i, s), s already picked
//
// where score is the boosted consensus relevance and sim is the weighted
// genre/keyword/cast overlap. lambda 0 keeps relevance order; 1 ignores
// relevance after the first pick. Ties go to higher relevance, then lower
// item id, so the result depends only on the input set and lambda.
// (Carbonell and Goldstein, SIGIR 1998.)
type MMR struct {
	lambda float64

	genreWeight   float64
	keywordWeight float64
	castWeight    float64
}

// NewMMR creates a new MMR reranker. Lambda is clamped to [0, 1].
func NewMMR(cfg recommend.DiversityConfig) *MMR {
	lambda := cfg.MMRLambda
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{
		lambda:        lambda,
		genreWeight:   max(cfg.GenreWeight, 0),
		keywordWeight: max(cfg.KeywordWeight, 0),
		castWeight:    max(cfg.CastWeight, 0),
	}
}

// Name is "mmr".
func (m *MMR) Name() string {
	return "mmr"
}

// Lambda returns the clamped diversity strength.
func (m *MMR) Lambda() float64 {
	return m.lambda
}

// Rerank returns the top k of items in MMR order. Each pick depends on the
// previous ones, so selection is sequential; the running max similarity per
// candidate keeps it at O(k*n) similarity evaluations.
//
//nolint:gocritic // rangeValCopy: ScoredCandidate passed by value in range, acceptable for clarity
func (m *MMR) Rerank(_ context.Context, items []recommend.ScoredCandidate, k int) []recommend.ScoredCandidate {
	k = min(k, len(items), maxSuggestions)
	if k <= 0 {
		return nil
	}

	selected := make([]recommend.ScoredCandidate, 0, k)
	taken := make([]bool, len(items))
	maxSim := make([]float64, len(items))

	for len(selected) < k {
		bestIdx := -1
		bestMMR := 0.0

		for i, item := range items {
			if taken[i] {
				continue
			}
			mmrScore := (1-m.lambda)*item.Score - m.lambda*maxSim[i]
			if bestIdx < 0 || better(mmrScore, bestMMR, &item, &items[bestIdx]) {
				bestIdx = i
				bestMMR = mmrScore
			}
		}

		if bestIdx < 0 {
			break
		}

		taken[bestIdx] = true
		selected = append(selected, items[bestIdx])

		// Pure relevance never needs similarities.
		if m.lambda == 0 {
			continue
		}
		for i := range items {
			if taken[i] {
				continue
			}
			if sim := m.Similarity(items[i].Metadata, items[bestIdx].Metadata); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected
}

// better reports whether candidate a with MMR score sa beats b with sb.
func better(sa, sb float64, a, b *recommend.ScoredCandidate) bool {
	if sa > sb+tieEpsilon {
		return true
	}
	if sa < sb-tieEpsilon {
		return false
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ItemID < b.ItemID
}

// Similarity is the weighted overlap of genres, keywords and cast, in [0, 1].
// Only components present on both items contribute, and their weights are
// renormalized. Items without metadata have zero similarity.
func (m *MMR) Similarity(a, b *recommend.ItemMetadata) float64 {
	if a == nil || b == nil {
		return 0
	}

	var sum, weights float64
	add := func(w float64, x, y []string) {
		if w <= 0 || len(x) == 0 || len(y) == 0 {
			return
		}
		sum += w * jaccard(x, y)
		weights += w
	}
	add(m.genreWeight, a.Genres, b.Genres)
	add(m.keywordWeight, a.Keywords, b.Keywords)
	add(m.castWeight, a.Cast, b.Cast)

	if weights == 0 {
		return 0
	}
	return sum / weights
}

// jaccard is |A∩B| / |A∪B| over lower-cased names.
func jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, name := range a {
		set[strings.ToLower(name)] = false
	}
	shared, union := 0, len(set)
	for _, name := range b {
		name = strings.ToLower(name)
		seen, inA := set[name]
		switch {
		case inA && !seen:
			set[name] = true
			shared++
		case !inA:
			set[name] = true
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

var _ recommend.Reranker = (*MMR)(nil)
