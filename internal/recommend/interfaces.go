// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"time"
)

// Source is an independent scoring source.
type Source interface {
	// Name returns the source identifier used for weights and reasons.
	Name() string

	// Score returns raw scores on the source's own scale for the given items.
	// Items the source cannot score are omitted from the result. Score should
	// return promptly once ctx is done; callers stop waiting at that point
	// and discard a late result.
	Score(ctx context.Context, userID int, itemIDs []int) (map[int]float64, error)
}

// MetadataResolver resolves typed item metadata.
type MetadataResolver interface {
	// Resolve returns metadata per item. Items it cannot resolve are omitted.
	Resolve(ctx context.Context, itemIDs []int) (map[int]*ItemMetadata, error)
}

// HistoryStore persists watch history and per-user learning state.
// Learning state is always written as a whole.
type HistoryStore interface {
	// WatchHistory returns the user's watch records, oldest first.
	WatchHistory(ctx context.Context, userID int) ([]WatchRecord, error)

	// RecordWatches ingests records and merges known items with MergeWatch.
	RecordWatches(ctx context.Context, userID int, records []WatchRecord) error

	// LoadLearningState returns the stored state and whether it existed.
	LoadLearningState(ctx context.Context, userID int) (LearningState, bool, error)

	// SaveLearningState upserts the full learning state atomically.
	SaveLearningState(ctx context.Context, state LearningState) error

	// CommitLearning ingests records and upserts state in one atomic write.
	// On error neither the records nor the state are stored.
	CommitLearning(ctx context.Context, userID int, records []WatchRecord, state LearningState) error
}

// ExposureLog records what was served and how users reacted.
type ExposureLog interface {
	// RecordExposures appends exposure records.
	RecordExposures(ctx context.Context, exposures []SuggestionExposure) error

	// RecordFeedback appends feedback records.
	RecordFeedback(ctx context.Context, feedback []Feedback) error

	// Exposures returns the user's exposures shown at or after since.
	Exposures(ctx context.Context, userID int, since time.Time) ([]SuggestionExposure, error)

	// Feedback returns the user's feedback given at or after since.
	Feedback(ctx context.Context, userID int, since time.Time) ([]Feedback, error)
}

// Reranker modifies a ranked list for diversity or other objectives.
type Reranker interface {
	// Name returns the reranker identifier (e.g., "mmr").
	Name() string

	// Rerank reorders the candidates, returning up to k of them.
	// The input is already scored; it need not be sorted.
	Rerank(ctx context.Context, items []ScoredCandidate, k int) []ScoredCandidate
}
