// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"sort"
	"strings"
	"time"
)

// ItemMetadata is the typed metadata contract supplied by the metadata resolver.
// A nil *ItemMetadata means the item's metadata could not be resolved.
type ItemMetadata struct {
	// Genres is the ordered genre list. The first entry is the primary genre.
	Genres []string `json:"genres" validate:"required,min=1,dive,required"`

	// Keywords is the keyword list used for subgenre and cross-genre matching.
	Keywords []string `json:"keywords" validate:"dive,required"`

	// Cast lists principal cast and crew names.
	Cast []string `json:"cast,omitempty" validate:"dive,required"`

	// RuntimeMinutes is the runtime. Zero means unknown.
	RuntimeMinutes int `json:"runtime_minutes,omitempty" validate:"gte=0,lte=1440"`

	// Year is the release year. Zero means unknown.
	Year int `json:"year,omitempty" validate:"gte=0"`

	// VoteCount is the aggregate number of votes.
	VoteCount int `json:"vote_count,omitempty" validate:"gte=0"`

	// VoteAverage is the aggregate vote average (0-10).
	VoteAverage float64 `json:"vote_average,omitempty" validate:"gte=0,lte=10"`
}

// PrimaryGenre returns the first genre, or "" when none is known.
func (m *ItemMetadata) PrimaryGenre() string {
	if m == nil || len(m.Genres) == 0 {
		return ""
	}
	return m.Genres[0]
}

// HasGenres reports whether the metadata carries at least one genre.
func (m *ItemMetadata) HasGenres() bool {
	return m != nil && len(m.Genres) > 0
}

// WatchRecord is one entry of a user's watch history.
type WatchRecord struct {
	// ItemID is the item identifier.
	ItemID int `json:"item_id" validate:"required,gt=0"`

	// Title is the display title, used for cross-genre example titles.
	Title string `json:"title,omitempty"`

	// Rating is the optional explicit rating on the configured scale (0-5).
	Rating *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`

	// Liked is the explicit like flag.
	Liked bool `json:"liked"`

	// WatchedAt is when the item was watched.
	WatchedAt time.Time `json:"watched_at" validate:"required"`

	// RewatchCount counts additional viewings after the first.
	RewatchCount int `json:"rewatch_count" validate:"gte=0"`

	// Metadata is the resolved metadata, nil when unavailable.
	Metadata *ItemMetadata `json:"metadata,omitempty"`
}

// HasRating reports whether the record carries an explicit rating.
func (w *WatchRecord) HasRating() bool {
	return w.Rating != nil
}

// RatingValue returns the explicit rating or 0.
func (w *WatchRecord) RatingValue() float64 {
	if w.Rating == nil {
		return 0
	}
	return *w.Rating
}

// Weight returns the learning weight of the record: the rating when present,
// 1.0 when liked without a rating, otherwise 0.
func (w *WatchRecord) Weight() float64 {
	if w.Rating != nil {
		return *w.Rating
	}
	if w.Liked {
		return 1.0
	}
	return 0
}

// MergeWatch folds a re-ingested record into the stored one. An incoming
// record with the stored WatchedAt, or none, is a rating update and leaves
// the rewatch count alone; any other WatchedAt is one more viewing. The
// incoming count is always added, the later WatchedAt wins, a supplied rating
// replaces the stored one and Liked is sticky.
//
//nolint:gocritic // hugeParam: records are passed by value to keep merge pure
func MergeWatch(stored, incoming WatchRecord) WatchRecord {
	merged := stored
	merged.RewatchCount = stored.RewatchCount + incoming.RewatchCount
	if IsRewatch(stored, incoming) {
		merged.RewatchCount++
	}
	if incoming.WatchedAt.After(stored.WatchedAt) {
		merged.WatchedAt = incoming.WatchedAt
	}
	if incoming.Rating != nil {
		r := *incoming.Rating
		merged.Rating = &r
	}
	merged.Liked = stored.Liked || incoming.Liked
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.Metadata != nil {
		merged.Metadata = incoming.Metadata
	}
	return merged
}

// IsRewatch reports whether incoming records a new viewing of stored rather
// than a rating change.
//
//nolint:gocritic // hugeParam: see MergeWatch
func IsRewatch(stored, incoming WatchRecord) bool {
	return !incoming.WatchedAt.IsZero() && !incoming.WatchedAt.Equal(stored.WatchedAt)
}

// SortWatchRecords sorts records chronologically, oldest first.
// Ties are broken by item id for determinism.
func SortWatchRecords(records []WatchRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].WatchedAt.Equal(records[j].WatchedAt) {
			return records[i].WatchedAt.Before(records[j].WatchedAt)
		}
		return records[i].ItemID < records[j].ItemID
	})
}

// Candidate is an item considered for a single recommendation request.
type Candidate struct {
	// ItemID is the item identifier.
	ItemID int `json:"item_id" validate:"required,gt=0"`

	// Title is the display title.
	Title string `json:"title,omitempty"`

	// SourceScores maps source name to raw score. Sources that did not
	// respond are absent, never zero.
	SourceScores map[string]float64 `json:"source_scores,omitempty"`

	// Metadata is the resolved metadata, nil when unavailable.
	Metadata *ItemMetadata `json:"metadata,omitempty"`
}

// ConsensusLevel buckets how many sources agree on a candidate.
type ConsensusLevel int

const (
	// ConsensusNone means no source scored the candidate.
	ConsensusNone ConsensusLevel = iota
	// ConsensusLow means a single agreeing source.
	ConsensusLow
	// ConsensusMedium means a few agreeing sources.
	ConsensusMedium
	// ConsensusHigh means broad agreement.
	ConsensusHigh
)

// String returns the level name.
func (l ConsensusLevel) String() string {
	switch l {
	case ConsensusLow:
		return "low"
	case ConsensusMedium:
		return "medium"
	case ConsensusHigh:
		return "high"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l ConsensusLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ConsensusLevel) UnmarshalText(text []byte) error {
	*l = ParseConsensusLevel(string(text))
	return nil
}

// ParseConsensusLevel parses a level name. Unknown names map to ConsensusNone.
func ParseConsensusLevel(s string) ConsensusLevel {
	switch strings.ToLower(s) {
	case "low":
		return ConsensusLow
	case "medium":
		return ConsensusMedium
	case "high":
		return ConsensusHigh
	default:
		return ConsensusNone
	}
}

// ScoredCandidate is a candidate that survived aggregation.
type ScoredCandidate struct {
	Candidate

	// Consensus is the weighted-average normalized score over responding sources.
	Consensus float64 `json:"consensus"`

	// Level is the consensus level.
	Level ConsensusLevel `json:"consensus_level"`

	// Sources lists the sources that scored the candidate, sorted.
	Sources []string `json:"sources"`

	// Boost is the total additive boost applied after aggregation.
	Boost float64 `json:"boost"`

	// Score is Consensus + Boost; the relevance used by the reranker.
	Score float64 `json:"score"`

	// Exploratory marks candidates outside the user's top and avoided genres.
	Exploratory bool `json:"exploratory"`

	// Reasons carries the semantic explanation payload.
	Reasons []Reason `json:"reasons,omitempty"`
}

// ReasonCode identifies why a candidate was boosted, admitted or rejected.
type ReasonCode string

// Reason codes.
const (
	ReasonConsensus         ReasonCode = "consensus"
	ReasonCrossGenre        ReasonCode = "cross_genre_match"
	ReasonPreferredSubgenre ReasonCode = "preferred_subgenre"
	ReasonGenreTransition   ReasonCode = "genre_transition"
	ReasonExploration       ReasonCode = "exploration_pick"
	ReasonAvoidedSubgenre   ReasonCode = "avoided_subgenre"
	ReasonNicheIncompatible ReasonCode = "niche_incompatible"
	ReasonRuntimeMismatch   ReasonCode = "runtime_mismatch"
)

// Reason is a semantic explanation. Rendering text is left to the caller.
type Reason struct {
	Code      ReasonCode `json:"code"`
	Genre     string     `json:"genre,omitempty"`
	Genres    []string   `json:"genres,omitempty"`
	Subgenre  string     `json:"subgenre,omitempty"`
	FromGenre string     `json:"from_genre,omitempty"`
	Niche     string     `json:"niche,omitempty"`
	Keywords  []string   `json:"keywords,omitempty"`
	Examples  []string   `json:"examples,omitempty"`
	Sources   []string   `json:"sources,omitempty"`
	Boost     float64    `json:"boost,omitempty"`
	Value     float64    `json:"value,omitempty"`
}

// GenreWeight is a ranked genre with its weighted presence.
type GenreWeight struct {
	Genre  string  `json:"genre"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}

// SubgenreStatus classifies a subgenre pattern.
type SubgenreStatus string

// Subgenre statuses.
const (
	SubgenreNeutral   SubgenreStatus = "neutral"
	SubgenrePreferred SubgenreStatus = "preferred"
	SubgenreAvoided   SubgenreStatus = "avoided"
)

// SubgenrePattern is the learned taste for one subgenre within a genre.
type SubgenrePattern struct {
	Genre         string         `json:"genre"`
	Subgenre      string         `json:"subgenre"`
	Occurrences   int            `json:"occurrences"`
	WatchFraction float64        `json:"watch_fraction"`
	LikeRate      float64        `json:"like_rate"`
	Status        SubgenreStatus `json:"status"`
}

// GenrePair is an unordered genre pair stored in lexical order.
type GenrePair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewGenrePair builds a pair in canonical (case-insensitive lexical) order.
func NewGenrePair(a, b string) GenrePair {
	if strings.ToLower(b) < strings.ToLower(a) {
		a, b = b, a
	}
	return GenrePair{A: a, B: b}
}

// Key returns a stable lowercase key for the pair.
func (p GenrePair) Key() string {
	return strings.ToLower(p.A) + "|" + strings.ToLower(p.B)
}

// CrossGenrePattern records a well-liked genre combination.
type CrossGenrePattern struct {
	Pair           GenrePair `json:"pair"`
	Occurrences    int       `json:"occurrences"`
	AverageRating  float64   `json:"average_rating"`
	SharedKeywords []string  `json:"shared_keywords"`
	ExampleItems   []string  `json:"example_items"`
	Strength       float64   `json:"strength"`
}

// RuntimeStats summarizes recently watched runtimes.
type RuntimeStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

// TasteProfile is a derived snapshot of a user's taste. It is rebuilt from
// watch history and never mutated independently.
type TasteProfile struct {
	UserID             int                                   `json:"user_id"`
	TopGenres          []GenreWeight                         `json:"top_genres"`
	AvoidGenres        []string                              `json:"avoid_genres"`
	SubgenrePatterns   map[string]map[string]SubgenrePattern `json:"subgenre_patterns"`
	CrossGenrePatterns []CrossGenrePattern                   `json:"cross_genre_patterns"`
	Runtime            RuntimeStats                          `json:"runtime"`
	NicheCounts        map[string]int                        `json:"niche_counts"`
	LastGenre          string                                `json:"last_genre,omitempty"`
	FilmsAnalyzed      int                                   `json:"films_analyzed"`
	MissingMetadata    int                                   `json:"missing_metadata"`
	BuiltAt            time.Time                             `json:"built_at"`
}

// IsTopGenre reports whether genre is one of the profile's top genres.
func (p *TasteProfile) IsTopGenre(genre string) bool {
	for _, g := range p.TopGenres {
		if strings.EqualFold(g.Genre, genre) {
			return true
		}
	}
	return false
}

// IsAvoidGenre reports whether genre is an avoided genre.
func (p *TasteProfile) IsAvoidGenre(genre string) bool {
	for _, g := range p.AvoidGenres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// Subgenre returns the pattern for a subgenre within genre, if any.
func (p *TasteProfile) Subgenre(genre, subgenre string) (SubgenrePattern, bool) {
	for g, subs := range p.SubgenrePatterns {
		if !strings.EqualFold(g, genre) {
			continue
		}
		for s, pat := range subs {
			if strings.EqualFold(s, subgenre) {
				return pat, true
			}
		}
	}
	return SubgenrePattern{}, false
}

// GenreNames returns the top genre names in rank order.
func (p *TasteProfile) GenreNames() []string {
	names := make([]string, len(p.TopGenres))
	for i, g := range p.TopGenres {
		names[i] = g.Genre
	}
	return names
}

// ExplorationState is the per-user exploration controller state.
type ExplorationState struct {
	UserID                int       `json:"user_id"`
	ExplorationRate       float64   `json:"exploration_rate"`
	ExploratoryItemsRated int       `json:"exploratory_items_rated"`
	ExploratoryAvgRating  float64   `json:"exploratory_avg_rating"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// GenreTransition is a directed, accumulated genre-to-genre watch transition.
type GenreTransition struct {
	From         string `json:"from"`
	To           string `json:"to"`
	SuccessCount int    `json:"success_count"`
	TotalCount   int    `json:"total_count"`
}

// SuccessRate returns SuccessCount / TotalCount, or 0 with no observations.
func (t GenreTransition) SuccessRate() float64 {
	if t.TotalCount <= 0 {
		return 0
	}
	return float64(t.SuccessCount) / float64(t.TotalCount)
}

// Key returns a stable lowercase key for the directed pair.
func (t GenreTransition) Key() string {
	return strings.ToLower(t.From) + ">" + strings.ToLower(t.To)
}

// LearningState bundles the per-user state that must be persisted atomically.
type LearningState struct {
	UserID      int               `json:"user_id"`
	Exploration ExplorationState  `json:"exploration"`
	Transitions []GenreTransition `json:"transitions"`
}

// SuggestionExposure is written once at serve time and never re-scored.
type SuggestionExposure struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	UserID         int            `json:"user_id"`
	ItemID         int            `json:"item_id"`
	ShownAt        time.Time      `json:"shown_at"`
	BaseScore      float64        `json:"base_score"`
	ConsensusLevel ConsensusLevel `json:"consensus_level"`
	Sources        []string       `json:"sources"`
	MMRLambda      float64        `json:"mmr_lambda"`
	DiversityRank  int            `json:"diversity_rank"`
	Exploratory    bool           `json:"exploratory"`
}

// Polarity is the direction of explicit feedback.
type Polarity string

// Feedback polarities.
const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// Feedback is an explicit reaction to a shown suggestion.
type Feedback struct {
	UserID   int       `json:"user_id"`
	ItemID   int       `json:"item_id" validate:"required,gt=0"`
	Polarity Polarity  `json:"polarity" validate:"required,oneof=positive negative"`
	At       time.Time `json:"at"`
}

// Suggestion is one entry of the final ordered list.
type Suggestion struct {
	ItemID         int            `json:"item_id"`
	Title          string         `json:"title,omitempty"`
	Score          float64        `json:"score"`
	ConsensusLevel ConsensusLevel `json:"consensus_level"`
	Sources        []string       `json:"sources"`
	Reasons        []Reason       `json:"reasons"`
	DiversityRank  int            `json:"diversity_rank"`
	Exploratory    bool           `json:"exploratory"`
}

// Overrides are per-request configuration overrides.
type Overrides struct {
	// MMRLambda overrides the diversity strength when set.
	MMRLambda *float64 `json:"mmr_lambda,omitempty" yaml:"mmr_lambda,omitempty" validate:"omitempty,gte=0,lte=1"`

	// SourceWeights overrides individual source weights.
	SourceWeights map[string]float64 `json:"source_weights,omitempty" yaml:"source_weights,omitempty" validate:"omitempty,dive,gte=0"`

	// DisableExploration serves without reserved exploratory slots.
	DisableExploration bool `json:"disable_exploration,omitempty" yaml:"disable_exploration,omitempty"`
}

// Request is a recommendation request.
type Request struct {
	UserID     int         `json:"user_id"`
	Candidates []Candidate `json:"candidates"`
	K          int         `json:"k,omitempty"`
	Overrides  Overrides   `json:"overrides"`
	RequestID  string      `json:"request_id,omitempty"`
}

// Response is a recommendation response.
type Response struct {
	Suggestions []Suggestion     `json:"suggestions"`
	Events      []Event          `json:"events,omitempty"`
	Metadata    ResponseMetadata `json:"metadata"`
}

// ResponseMetadata carries diagnostics for a response.
type ResponseMetadata struct {
	RequestID        string    `json:"request_id"`
	UserID           int       `json:"user_id"`
	TotalCandidates  int       `json:"total_candidates"`
	Scored           int       `json:"scored"`
	Filtered         int       `json:"filtered"`
	SourcesUsed      []string  `json:"sources_used"`
	SourcesFailed    []string  `json:"sources_failed,omitempty"`
	MMRLambda        float64   `json:"mmr_lambda"`
	ExplorationRate  float64   `json:"exploration_rate"`
	ExploratorySlots int       `json:"exploratory_slots"`
	EmptyReason      string    `json:"empty_reason,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// LearnRequest carries new ratings and feedback for one user.
type LearnRequest struct {
	UserID   int           `json:"user_id"`
	Ratings  []WatchRecord `json:"ratings" validate:"dive"`
	Feedback []Feedback    `json:"feedback" validate:"dive"`
}
