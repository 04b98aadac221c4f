// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"fmt"
	"maps"
	"time"
)

// Config contains all configuration for the personalization engine.
// Every threshold used by a pipeline stage lives here so it can be tuned
// without a code change.
type Config struct {
	// Sources configures scoring source weights, ranges and fan-out.
	Sources SourcesConfig `koanf:"sources" json:"sources"`

	// Consensus configures consensus level thresholds.
	Consensus ConsensusConfig `koanf:"consensus" json:"consensus"`

	// Profile configures taste profile mining.
	Profile ProfileConfig `koanf:"profile" json:"profile"`

	// Filter configures subgenre, niche and runtime filtering.
	Filter FilterConfig `koanf:"filter" json:"filter"`

	// Diversity configures MMR reranking.
	Diversity DiversityConfig `koanf:"diversity" json:"diversity"`

	// Exploration configures the adaptive exploration controller.
	Exploration ExplorationConfig `koanf:"exploration" json:"exploration"`

	// Boosts configures the additive boost budget.
	Boosts BoostConfig `koanf:"boosts" json:"boosts"`

	// Replay configures the counterfactual replay evaluator.
	Replay ReplayConfig `koanf:"replay" json:"replay"`

	// Limits contains operational limits.
	Limits LimitsConfig `koanf:"limits" json:"limits"`

	// Cache configures the taste profile cache.
	Cache CacheConfig `koanf:"cache" json:"cache"`

	// Taxonomy holds the subgenre and niche rules.
	Taxonomy Taxonomy `koanf:"taxonomy" json:"taxonomy"`
}

// ScoreRange is the raw score scale of a source.
type ScoreRange struct {
	Min float64 `koanf:"min" json:"min"`
	Max float64 `koanf:"max" json:"max"`
}

// SourcesConfig configures the scoring sources.
type SourcesConfig struct {
	// Weights maps source name to its consensus weight.
	Weights map[string]float64 `koanf:"weights" json:"weights"`

	// DefaultWeight applies to sources missing from Weights.
	// Default: 1.0.
	DefaultWeight float64 `koanf:"default_weight" json:"default_weight"`

	// Ranges maps source name to its raw score range. Sources without a
	// range are min-max normalized over the request's candidates.
	Ranges map[string]ScoreRange `koanf:"ranges" json:"ranges"`

	// Timeout bounds a single source fetch. A source that times out is
	// treated as not having responded.
	// Default: 2s.
	Timeout time.Duration `koanf:"timeout" json:"timeout"`

	// MaxConcurrent bounds concurrent source fetches.
	// Default: 8.
	MaxConcurrent int `koanf:"max_concurrent" json:"max_concurrent"`
}

// Weight returns the configured weight for a source.
func (s SourcesConfig) Weight(name string) float64 {
	if w, ok := s.Weights[name]; ok {
		return w
	}
	return s.DefaultWeight
}

// ConsensusConfig configures consensus level buckets by agreeing-source count.
type ConsensusConfig struct {
	// MediumMinSources is the minimum agreeing sources for "medium".
	// Default: 2.
	MediumMinSources int `koanf:"medium_min_sources" json:"medium_min_sources"`

	// HighMinSources is the minimum agreeing sources for "high".
	// Default: 4.
	HighMinSources int `koanf:"high_min_sources" json:"high_min_sources"`

	// AgreementThreshold is the minimum normalized score for a source to
	// count as agreeing.
	// Default: 0 (any responding source agrees).
	AgreementThreshold float64 `koanf:"agreement_threshold" json:"agreement_threshold"`
}

// ProfileConfig configures taste profile mining.
type ProfileConfig struct {
	// TopGenres is the number of top genres kept.
	// Default: 5.
	TopGenres int `koanf:"top_genres" json:"top_genres"`

	// AvoidThreshold is the average rating below which a genre is avoided.
	// Default: 2.5.
	AvoidThreshold float64 `koanf:"avoid_threshold" json:"avoid_threshold"`

	// AvoidMinOccurrences is the minimum rated occurrences before a genre
	// can be avoided.
	// Default: 3.
	AvoidMinOccurrences int `koanf:"avoid_min_occurrences" json:"avoid_min_occurrences"`

	// HighRatingThreshold marks a rating as "highly rated".
	// Default: 4.0.
	HighRatingThreshold float64 `koanf:"high_rating_threshold" json:"high_rating_threshold"`

	// SubgenrePreferredFraction is the minimum watch fraction for "preferred".
	// Default: 0.15.
	SubgenrePreferredFraction float64 `koanf:"subgenre_preferred_fraction" json:"subgenre_preferred_fraction"`

	// SubgenrePreferredLikeRate is the minimum like rate for "preferred".
	// Default: 0.60.
	SubgenrePreferredLikeRate float64 `koanf:"subgenre_preferred_like_rate" json:"subgenre_preferred_like_rate"`

	// SubgenreAvoidedLikeRate is the like rate below which a subgenre is avoided.
	// Default: 0.30.
	SubgenreAvoidedLikeRate float64 `koanf:"subgenre_avoided_like_rate" json:"subgenre_avoided_like_rate"`

	// SubgenreAvoidedMinFraction is the non-trivial watch fraction required
	// before a subgenre can be avoided.
	// Default: 0.05.
	SubgenreAvoidedMinFraction float64 `koanf:"subgenre_avoided_min_fraction" json:"subgenre_avoided_min_fraction"`

	// SubgenreAvoidedMinOccurrences is the minimum occurrences before a
	// subgenre can be avoided.
	// Default: 2.
	SubgenreAvoidedMinOccurrences int `koanf:"subgenre_avoided_min_occurrences" json:"subgenre_avoided_min_occurrences"`

	// CrossGenreMinOccurrences is the minimum pair co-occurrence.
	// Default: 3.
	CrossGenreMinOccurrences int `koanf:"cross_genre_min_occurrences" json:"cross_genre_min_occurrences"`

	// CrossGenreMinRating is the minimum average rating of a pair.
	// Default: 3.5.
	CrossGenreMinRating float64 `koanf:"cross_genre_min_rating" json:"cross_genre_min_rating"`

	// CrossGenreMaxExamples caps example titles per pair.
	// Default: 3.
	CrossGenreMaxExamples int `koanf:"cross_genre_max_examples" json:"cross_genre_max_examples"`

	// CrossGenreMaxKeywords caps shared keywords per pair.
	// Default: 5.
	CrossGenreMaxKeywords int `koanf:"cross_genre_max_keywords" json:"cross_genre_max_keywords"`

	// CrossGenreSaturation is the occurrence count at which pair strength
	// stops growing.
	// Default: 10.
	CrossGenreSaturation int `koanf:"cross_genre_saturation" json:"cross_genre_saturation"`

	// RuntimeWindow is the number of recent films used for runtime stats.
	// Default: 50.
	RuntimeWindow int `koanf:"runtime_window" json:"runtime_window"`

	// RatingScale is the maximum rating value.
	// Default: 5.
	RatingScale float64 `koanf:"rating_scale" json:"rating_scale"`
}

// FilterConfig configures the subgenre/niche filter.
type FilterConfig struct {
	// NicheFiltering enables rejection of niches with zero prior exposure.
	// Default: true.
	NicheFiltering bool `koanf:"niche_filtering" json:"niche_filtering"`

	// RuntimeFiltering enables the runtime compatibility check.
	// Default: true.
	RuntimeFiltering bool `koanf:"runtime_filtering" json:"runtime_filtering"`

	// RuntimeMaxStdDevs is the allowed deviation from the mean runtime.
	// Default: 2.0.
	RuntimeMaxStdDevs float64 `koanf:"runtime_max_std_devs" json:"runtime_max_std_devs"`

	// RuntimeMinStdDev floors the standard deviation, in minutes.
	// Default: 15.
	RuntimeMinStdDev float64 `koanf:"runtime_min_std_dev" json:"runtime_min_std_dev"`

	// RuntimeMinSamples is the sample count required before filtering by runtime.
	// Default: 5.
	RuntimeMinSamples int `koanf:"runtime_min_samples" json:"runtime_min_samples"`

	// CrossGenreMinStrength is the pattern strength required for a boost.
	// Default: 0.3.
	CrossGenreMinStrength float64 `koanf:"cross_genre_min_strength" json:"cross_genre_min_strength"`

	// CrossGenreBoost is multiplied by pattern strength.
	// Default: 0.1.
	CrossGenreBoost float64 `koanf:"cross_genre_boost" json:"cross_genre_boost"`

	// PreferredSubgenreBoost is added for preferred subgenre matches.
	// Default: 0.05.
	PreferredSubgenreBoost float64 `koanf:"preferred_subgenre_boost" json:"preferred_subgenre_boost"`
}

// DiversityConfig configures MMR reranking.
type DiversityConfig struct {
	// MMRLambda is the diversity strength: 0 keeps pure relevance order,
	// 1 diversifies only.
	// Default: 0.3.
	MMRLambda float64 `koanf:"mmr_lambda" json:"mmr_lambda"`

	// GenreWeight is the genre overlap share of similarity.
	// Default: 0.5.
	GenreWeight float64 `koanf:"genre_weight" json:"genre_weight"`

	// KeywordWeight is the keyword overlap share of similarity.
	// Default: 0.3.
	KeywordWeight float64 `koanf:"keyword_weight" json:"keyword_weight"`

	// CastWeight is the cast overlap share of similarity.
	// Default: 0.2.
	CastWeight float64 `koanf:"cast_weight" json:"cast_weight"`
}

// ExplorationConfig configures the adaptive exploration controller.
type ExplorationConfig struct {
	// Enabled reserves exploratory slots when serving.
	// Default: true.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// MinRate is the exploration rate floor.
	// Default: 0.05.
	MinRate float64 `koanf:"min_rate" json:"min_rate"`

	// MaxRate is the exploration rate cap.
	// Default: 0.30.
	MaxRate float64 `koanf:"max_rate" json:"max_rate"`

	// InitialRate is the rate for users without state.
	// Default: 0.15.
	InitialRate float64 `koanf:"initial_rate" json:"initial_rate"`

	// Step is the batch learning-rate step.
	// Default: 0.05.
	Step float64 `koanf:"step" json:"step"`

	// Penalty is the negative-feedback step. Must not exceed Step.
	// Default: 0.02.
	Penalty float64 `koanf:"penalty" json:"penalty"`

	// RecentWindow is the number of recent ratings inspected per batch.
	// Default: 20.
	RecentWindow int `koanf:"recent_window" json:"recent_window"`

	// LikesThreshold is the exploratory average at or above which the rate grows.
	// Default: 3.5.
	LikesThreshold float64 `koanf:"likes_threshold" json:"likes_threshold"`

	// DislikesThreshold is the exploratory average below which the rate shrinks.
	// Default: 3.0.
	DislikesThreshold float64 `koanf:"dislikes_threshold" json:"dislikes_threshold"`

	// TransitionWindow is the number of recent rated films used for
	// transition learning.
	// Default: 50.
	TransitionWindow int `koanf:"transition_window" json:"transition_window"`

	// TransitionSuccessThreshold is the rating counted as a successful transition.
	// Default: 3.5.
	TransitionSuccessThreshold float64 `koanf:"transition_success_threshold" json:"transition_success_threshold"`

	// TransitionMinTotal is the minimum observations for eligibility.
	// Default: 3.
	TransitionMinTotal int `koanf:"transition_min_total" json:"transition_min_total"`

	// TransitionMinSuccessRate is the minimum success rate for eligibility.
	// Default: 0.5.
	TransitionMinSuccessRate float64 `koanf:"transition_min_success_rate" json:"transition_min_success_rate"`

	// TransitionBoostWeight is multiplied by the success rate of an eligible transition.
	// Default: 0.1.
	TransitionBoostWeight float64 `koanf:"transition_boost_weight" json:"transition_boost_weight"`
}

// BoostConfig caps the additive boosts applied after aggregation.
type BoostConfig struct {
	// MaxTotal caps the sum of all boosts on one candidate.
	// Default: 0.25.
	MaxTotal float64 `koanf:"max_total" json:"max_total"`
}

// ReplayConfig configures the counterfactual replay evaluator.
type ReplayConfig struct {
	// ServingSize truncates the simulated list.
	// Default: 50.
	ServingSize int `koanf:"serving_size" json:"serving_size"`

	// Lookback is the default exposure window.
	// Default: 720h.
	Lookback time.Duration `koanf:"lookback" json:"lookback"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// MaxCandidates caps the candidate pool per request.
	// Default: 1000.
	MaxCandidates int `koanf:"max_candidates" json:"max_candidates"`

	// DefaultK is the list length when the request does not set one.
	// Default: 20.
	DefaultK int `koanf:"default_k" json:"default_k"`

	// MaxK caps the requested list length.
	// Default: 100.
	MaxK int `koanf:"max_k" json:"max_k"`

	// RequestTimeout bounds a whole recommendation request.
	// Default: 5s.
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout"`

	// MetadataConcurrency bounds concurrent metadata lookups.
	// Default: 16.
	MetadataConcurrency int `koanf:"metadata_concurrency" json:"metadata_concurrency"`
}

// CacheConfig configures the taste profile cache.
type CacheConfig struct {
	// Enabled turns profile caching on.
	// Default: true.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// TTL is the cache entry time-to-live.
	// Default: 10m.
	TTL time.Duration `koanf:"ttl" json:"ttl"`

	// MaxEntries is the maximum number of cached profiles.
	// Default: 10000.
	MaxEntries int `koanf:"max_entries" json:"max_entries"`
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			Weights:       map[string]float64{},
			DefaultWeight: 1.0,
			Ranges:        map[string]ScoreRange{},
			Timeout:       2 * time.Second,
			MaxConcurrent: 8,
		},
		Consensus: ConsensusConfig{
			MediumMinSources:   2,
			HighMinSources:     4,
			AgreementThreshold: 0,
		},
		Profile: ProfileConfig{
			TopGenres:                     5,
			AvoidThreshold:                2.5,
			AvoidMinOccurrences:           3,
			HighRatingThreshold:           4.0,
			SubgenrePreferredFraction:     0.15,
			SubgenrePreferredLikeRate:     0.60,
			SubgenreAvoidedLikeRate:       0.30,
			SubgenreAvoidedMinFraction:    0.05,
			SubgenreAvoidedMinOccurrences: 2,
			CrossGenreMinOccurrences:      3,
			CrossGenreMinRating:           3.5,
			CrossGenreMaxExamples:         3,
			CrossGenreMaxKeywords:         5,
			CrossGenreSaturation:          10,
			RuntimeWindow:                 50,
			RatingScale:                   5,
		},
		Filter: FilterConfig{
			NicheFiltering:         true,
			RuntimeFiltering:       true,
			RuntimeMaxStdDevs:      2.0,
			RuntimeMinStdDev:       15,
			RuntimeMinSamples:      5,
			CrossGenreMinStrength:  0.3,
			CrossGenreBoost:        0.1,
			PreferredSubgenreBoost: 0.05,
		},
		Diversity: DiversityConfig{
			MMRLambda:     0.3,
			GenreWeight:   0.5,
			KeywordWeight: 0.3,
			CastWeight:    0.2,
		},
		Exploration: ExplorationConfig{
			Enabled:                    true,
			MinRate:                    0.05,
			MaxRate:                    0.30,
			InitialRate:                0.15,
			Step:                       0.05,
			Penalty:                    0.02,
			RecentWindow:               20,
			LikesThreshold:             3.5,
			DislikesThreshold:          3.0,
			TransitionWindow:           50,
			TransitionSuccessThreshold: 3.5,
			TransitionMinTotal:         3,
			TransitionMinSuccessRate:   0.5,
			TransitionBoostWeight:      0.1,
		},
		Boosts: BoostConfig{
			MaxTotal: 0.25,
		},
		Replay: ReplayConfig{
			ServingSize: 50,
			Lookback:    30 * 24 * time.Hour,
		},
		Limits: LimitsConfig{
			MaxCandidates:       1000,
			DefaultK:            20,
			MaxK:                100,
			RequestTimeout:      5 * time.Second,
			MetadataConcurrency: 16,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
		},
		Taxonomy: DefaultTaxonomy(),
	}
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Validate checks the configuration for errors.
//
//nolint:gocyclo // validation needs to check many fields
func (c *Config) Validate() error {
	if c.Sources.DefaultWeight < 0 {
		return fmt.Errorf("sources.default_weight must be non-negative, got %f", c.Sources.DefaultWeight)
	}
	for name, w := range c.Sources.Weights {
		if w < 0 {
			return fmt.Errorf("sources.weights.%s must be non-negative, got %f", name, w)
		}
	}
	for name, r := range c.Sources.Ranges {
		if r.Max <= r.Min {
			return fmt.Errorf("sources.ranges.%s: max must exceed min, got [%f, %f]", name, r.Min, r.Max)
		}
	}
	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("sources.timeout must be positive, got %v", c.Sources.Timeout)
	}
	if c.Sources.MaxConcurrent < 1 {
		return fmt.Errorf("sources.max_concurrent must be positive, got %d", c.Sources.MaxConcurrent)
	}

	if c.Consensus.MediumMinSources < 2 {
		return fmt.Errorf("consensus.medium_min_sources must be at least 2, got %d", c.Consensus.MediumMinSources)
	}
	if c.Consensus.HighMinSources <= c.Consensus.MediumMinSources {
		return fmt.Errorf("consensus.high_min_sources must exceed medium_min_sources, got %d <= %d",
			c.Consensus.HighMinSources, c.Consensus.MediumMinSources)
	}
	if !inUnit(c.Consensus.AgreementThreshold) {
		return fmt.Errorf("consensus.agreement_threshold must be in [0, 1], got %f", c.Consensus.AgreementThreshold)
	}

	p := c.Profile
	if p.TopGenres < 1 {
		return fmt.Errorf("profile.top_genres must be positive, got %d", p.TopGenres)
	}
	if p.RatingScale <= 0 {
		return fmt.Errorf("profile.rating_scale must be positive, got %f", p.RatingScale)
	}
	if p.AvoidMinOccurrences < 1 {
		return fmt.Errorf("profile.avoid_min_occurrences must be positive, got %d", p.AvoidMinOccurrences)
	}
	for name, v := range map[string]float64{
		"subgenre_preferred_fraction":   p.SubgenrePreferredFraction,
		"subgenre_preferred_like_rate":  p.SubgenrePreferredLikeRate,
		"subgenre_avoided_like_rate":    p.SubgenreAvoidedLikeRate,
		"subgenre_avoided_min_fraction": p.SubgenreAvoidedMinFraction,
	} {
		if !inUnit(v) {
			return fmt.Errorf("profile.%s must be in [0, 1], got %f", name, v)
		}
	}
	if p.SubgenreAvoidedLikeRate >= p.SubgenrePreferredLikeRate {
		return fmt.Errorf("profile.subgenre_avoided_like_rate must be below subgenre_preferred_like_rate")
	}
	if p.CrossGenreMinOccurrences < 1 || p.CrossGenreSaturation < 1 {
		return fmt.Errorf("profile cross-genre occurrence settings must be positive")
	}
	if p.RuntimeWindow < 1 {
		return fmt.Errorf("profile.runtime_window must be positive, got %d", p.RuntimeWindow)
	}

	if c.Filter.RuntimeMaxStdDevs <= 0 {
		return fmt.Errorf("filter.runtime_max_std_devs must be positive, got %f", c.Filter.RuntimeMaxStdDevs)
	}
	if c.Filter.RuntimeMinStdDev < 0 {
		return fmt.Errorf("filter.runtime_min_std_dev must be non-negative, got %f", c.Filter.RuntimeMinStdDev)
	}
	if c.Filter.CrossGenreBoost < 0 || c.Filter.PreferredSubgenreBoost < 0 {
		return fmt.Errorf("filter boosts must be non-negative")
	}

	d := c.Diversity
	if !inUnit(d.MMRLambda) {
		return fmt.Errorf("diversity.mmr_lambda must be in [0, 1], got %f", d.MMRLambda)
	}
	if d.GenreWeight < 0 || d.KeywordWeight < 0 || d.CastWeight < 0 {
		return fmt.Errorf("diversity similarity weights must be non-negative")
	}
	if d.GenreWeight+d.KeywordWeight+d.CastWeight <= 0 {
		return fmt.Errorf("diversity similarity weights must not all be zero")
	}

	e := c.Exploration
	if e.MinRate < 0 || e.MaxRate > 1 || e.MinRate >= e.MaxRate {
		return fmt.Errorf("exploration rate bounds invalid, got [%f, %f]", e.MinRate, e.MaxRate)
	}
	if e.InitialRate < e.MinRate || e.InitialRate > e.MaxRate {
		return fmt.Errorf("exploration.initial_rate must be within bounds, got %f", e.InitialRate)
	}
	if e.Step <= 0 {
		return fmt.Errorf("exploration.step must be positive, got %f", e.Step)
	}
	if e.Penalty <= 0 || e.Penalty > e.Step {
		return fmt.Errorf("exploration.penalty must be in (0, step], got %f", e.Penalty)
	}
	if e.RecentWindow < 1 || e.TransitionWindow < 2 {
		return fmt.Errorf("exploration windows too small: recent=%d transition=%d", e.RecentWindow, e.TransitionWindow)
	}
	if e.DislikesThreshold > e.LikesThreshold {
		return fmt.Errorf("exploration.dislikes_threshold must not exceed likes_threshold")
	}
	if e.TransitionMinTotal < 1 || !inUnit(e.TransitionMinSuccessRate) {
		return fmt.Errorf("exploration transition eligibility invalid: min_total=%d min_success_rate=%f",
			e.TransitionMinTotal, e.TransitionMinSuccessRate)
	}

	if c.Boosts.MaxTotal < 0 {
		return fmt.Errorf("boosts.max_total must be non-negative, got %f", c.Boosts.MaxTotal)
	}

	if c.Replay.ServingSize < 1 {
		return fmt.Errorf("replay.serving_size must be positive, got %d", c.Replay.ServingSize)
	}
	if c.Replay.Lookback <= 0 {
		return fmt.Errorf("replay.lookback must be positive, got %v", c.Replay.Lookback)
	}

	if c.Limits.MaxCandidates < 1 {
		return fmt.Errorf("limits.max_candidates must be positive, got %d", c.Limits.MaxCandidates)
	}
	if c.Limits.DefaultK < 1 {
		return fmt.Errorf("limits.default_k must be positive, got %d", c.Limits.DefaultK)
	}
	if c.Limits.MaxK < c.Limits.DefaultK {
		return fmt.Errorf("limits.max_k must be >= limits.default_k, got %d < %d", c.Limits.MaxK, c.Limits.DefaultK)
	}
	if c.Limits.RequestTimeout <= 0 {
		return fmt.Errorf("limits.request_timeout must be positive, got %v", c.Limits.RequestTimeout)
	}
	if c.Limits.MetadataConcurrency < 1 {
		return fmt.Errorf("limits.metadata_concurrency must be positive, got %d", c.Limits.MetadataConcurrency)
	}

	return c.Taxonomy.Validate()
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Sources.Weights = maps.Clone(c.Sources.Weights)
	out.Sources.Ranges = maps.Clone(c.Sources.Ranges)
	out.Taxonomy = c.Taxonomy.Clone()
	return &out
}

// WithOverrides returns a copy of the configuration with per-request
// overrides applied. The receiver is not modified.
func (c *Config) WithOverrides(o Overrides) *Config {
	out := c.Clone()
	if o.MMRLambda != nil {
		out.Diversity.MMRLambda = clamp(*o.MMRLambda, 0, 1)
	}
	if len(o.SourceWeights) > 0 {
		if out.Sources.Weights == nil {
			out.Sources.Weights = make(map[string]float64, len(o.SourceWeights))
		}
		for name, w := range o.SourceWeights {
			if w >= 0 {
				out.Sources.Weights[name] = w
			}
		}
	}
	if o.DisableExploration {
		out.Exploration.Enabled = false
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
