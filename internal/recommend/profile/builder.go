// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package profile derives a TasteProfile from a user's watch history.
package profile

import (
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Builder builds taste profiles. It holds no per-user state and is safe
// for concurrent use.
type Builder struct {
	cfg      recommend.ProfileConfig
	taxonomy recommend.Taxonomy
}

// NewBuilder creates a profile builder.
func NewBuilder(cfg recommend.ProfileConfig, taxonomy recommend.Taxonomy) *Builder {
	return &Builder{cfg: cfg, taxonomy: taxonomy}
}

// genreStat accumulates per-genre statistics keyed by lowercase name.
type genreStat struct {
	name        string
	weight      float64
	weighted    int
	ratingSum   float64
	ratingCount int
}

type subgenreStat struct {
	genre       string
	name        string
	occurrences int
	liked       int
}

type pairStat struct {
	pair        recommend.GenrePair
	occurrences int
	ratingSum   float64
	ratingCount int
	keywords    map[string]*keywordCount
	examples    []string
}

type keywordCount struct {
	text  string
	count int
}

// Build derives the profile. History need not be sorted. Films without
// genre metadata are counted in MissingMetadata and excluded from genre,
// subgenre and cross-genre analysis; one MetadataMissing event is raised
// per such film.
//
//nolint:gocritic // rangeValCopy: WatchRecord passed by value in range, acceptable for clarity
func (b *Builder) Build(userID int, history []recommend.WatchRecord) (*recommend.TasteProfile, recommend.Events) {
	var events recommend.Events

	records := slices.Clone(history)
	recommend.SortWatchRecords(records)

	p := &recommend.TasteProfile{
		UserID:           userID,
		SubgenrePatterns: map[string]map[string]recommend.SubgenrePattern{},
		NicheCounts:      make(map[string]int, len(b.taxonomy.Niches)),
	}
	for _, n := range b.taxonomy.Niches {
		p.NicheCounts[n.Name] = 0
	}

	genres := map[string]*genreStat{}
	genreFilms := map[string]int{}
	subgenres := map[string]*subgenreStat{}
	pairs := map[string]*pairStat{}

	for _, r := range records {
		if !r.Metadata.HasGenres() {
			p.MissingMetadata++
			events.Add(recommend.Event{
				Kind:    recommend.EventMetadataMissing,
				ItemID:  r.ItemID,
				Message: "excluded from taste analysis",
			})
			continue
		}
		p.FilmsAnalyzed++
		p.LastGenre = r.Metadata.PrimaryGenre()

		for _, niche := range b.taxonomy.MatchNiches(r.Metadata) {
			p.NicheCounts[niche]++
		}

		filmGenres := dedupeFold(r.Metadata.Genres)
		weight := r.Weight()
		for _, g := range filmGenres {
			key := strings.ToLower(g)
			st, ok := genres[key]
			if !ok {
				st = &genreStat{name: g}
				genres[key] = st
			}
			if weight > 0 {
				st.weight += weight
				st.weighted++
			}
			if r.HasRating() {
				st.ratingSum += r.RatingValue()
				st.ratingCount++
			}
		}

		if len(r.Metadata.Keywords) == 0 {
			continue
		}

		liked := b.likedOrHighlyRated(&r)
		for _, g := range filmGenres {
			genreFilms[strings.ToLower(g)]++
		}
		for _, rule := range b.taxonomy.MatchSubgenres(r.Metadata) {
			key := strings.ToLower(rule.Genre) + "|" + strings.ToLower(rule.Name)
			st, ok := subgenres[key]
			if !ok {
				st = &subgenreStat{genre: rule.Genre, name: rule.Name}
				subgenres[key] = st
			}
			st.occurrences++
			if liked {
				st.liked++
			}
		}

		b.accumulatePairs(pairs, &r, filmGenres, liked)
	}

	p.AvoidGenres = b.avoidGenres(genres)
	p.TopGenres = b.topGenres(genres, p.AvoidGenres)
	b.classifySubgenres(p, subgenres, genreFilms)
	p.CrossGenrePatterns = b.crossGenrePatterns(pairs)
	p.Runtime = b.runtimeStats(records)

	return p, events
}

func (b *Builder) likedOrHighlyRated(r *recommend.WatchRecord) bool {
	return r.Liked || (r.HasRating() && r.RatingValue() >= b.cfg.HighRatingThreshold)
}

func (b *Builder) avoidGenres(genres map[string]*genreStat) []string {
	var out []string
	for _, st := range genres {
		if st.ratingCount < b.cfg.AvoidMinOccurrences {
			continue
		}
		if st.ratingSum/float64(st.ratingCount) < b.cfg.AvoidThreshold {
			out = append(out, st.name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// topGenres ranks genres by weighted presence. Avoided genres never rank.
func (b *Builder) topGenres(genres map[string]*genreStat, avoid []string) []recommend.GenreWeight {
	ranked := make([]recommend.GenreWeight, 0, len(genres))
	for _, st := range genres {
		if st.weight <= 0 || recommend.ContainsFold(avoid, st.name) {
			continue
		}
		ranked = append(ranked, recommend.GenreWeight{Genre: st.name, Weight: st.weight, Count: st.weighted})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return strings.ToLower(ranked[i].Genre) < strings.ToLower(ranked[j].Genre)
	})
	if len(ranked) > b.cfg.TopGenres {
		ranked = ranked[:b.cfg.TopGenres]
	}
	return ranked
}

func (b *Builder) classifySubgenres(p *recommend.TasteProfile, subgenres map[string]*subgenreStat, genreFilms map[string]int) {
	for _, st := range subgenres {
		total := genreFilms[strings.ToLower(st.genre)]
		if total == 0 {
			continue
		}
		pat := recommend.SubgenrePattern{
			Genre:         st.genre,
			Subgenre:      st.name,
			Occurrences:   st.occurrences,
			WatchFraction: float64(st.occurrences) / float64(total),
			LikeRate:      float64(st.liked) / float64(st.occurrences),
			Status:        recommend.SubgenreNeutral,
		}
		switch {
		case pat.WatchFraction >= b.cfg.SubgenrePreferredFraction && pat.LikeRate >= b.cfg.SubgenrePreferredLikeRate:
			pat.Status = recommend.SubgenrePreferred
		case pat.Occurrences >= b.cfg.SubgenreAvoidedMinOccurrences &&
			pat.WatchFraction >= b.cfg.SubgenreAvoidedMinFraction &&
			pat.LikeRate < b.cfg.SubgenreAvoidedLikeRate:
			pat.Status = recommend.SubgenreAvoided
		}
		if p.SubgenrePatterns[st.genre] == nil {
			p.SubgenrePatterns[st.genre] = map[string]recommend.SubgenrePattern{}
		}
		p.SubgenrePatterns[st.genre][st.name] = pat
	}
}

func (b *Builder) accumulatePairs(pairs map[string]*pairStat, r *recommend.WatchRecord, genres []string, liked bool) {
	if len(genres) < 2 {
		return
	}
	for i := 0; i < len(genres); i++ {
		for j := i + 1; j < len(genres); j++ {
			pair := recommend.NewGenrePair(genres[i], genres[j])
			st, ok := pairs[pair.Key()]
			if !ok {
				st = &pairStat{pair: pair, keywords: map[string]*keywordCount{}}
				pairs[pair.Key()] = st
			}
			st.occurrences++
			if r.HasRating() {
				st.ratingSum += r.RatingValue()
				st.ratingCount++
			}
			if !liked && !(r.HasRating() && r.RatingValue() >= b.cfg.CrossGenreMinRating) {
				continue
			}
			for _, kw := range dedupeFold(r.Metadata.Keywords) {
				k := strings.ToLower(kw)
				if kc, ok := st.keywords[k]; ok {
					kc.count++
				} else {
					st.keywords[k] = &keywordCount{text: kw, count: 1}
				}
			}
			st.examples = append(st.examples, title(r))
		}
	}
}

func (b *Builder) crossGenrePatterns(pairs map[string]*pairStat) []recommend.CrossGenrePattern {
	var out []recommend.CrossGenrePattern
	for _, st := range pairs {
		if st.occurrences < b.cfg.CrossGenreMinOccurrences || st.ratingCount == 0 {
			continue
		}
		avg := st.ratingSum / float64(st.ratingCount)
		if avg < b.cfg.CrossGenreMinRating {
			continue
		}

		kws := make([]*keywordCount, 0, len(st.keywords))
		for _, kc := range st.keywords {
			kws = append(kws, kc)
		}
		sort.Slice(kws, func(i, j int) bool {
			if kws[i].count != kws[j].count {
				return kws[i].count > kws[j].count
			}
			return strings.ToLower(kws[i].text) < strings.ToLower(kws[j].text)
		})
		shared := make([]string, 0, b.cfg.CrossGenreMaxKeywords)
		for _, kc := range kws {
			if len(shared) == b.cfg.CrossGenreMaxKeywords {
				break
			}
			shared = append(shared, kc.text)
		}

		// Most recent examples first.
		examples := make([]string, 0, b.cfg.CrossGenreMaxExamples)
		for i := len(st.examples) - 1; i >= 0 && len(examples) < b.cfg.CrossGenreMaxExamples; i-- {
			examples = append(examples, st.examples[i])
		}

		saturation := math.Min(1, float64(st.occurrences)/float64(b.cfg.CrossGenreSaturation))
		out = append(out, recommend.CrossGenrePattern{
			Pair:           st.pair,
			Occurrences:    st.occurrences,
			AverageRating:  avg,
			SharedKeywords: shared,
			ExampleItems:   examples,
			Strength:       avg / b.cfg.RatingScale * saturation,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Pair.Key() < out[j].Pair.Key()
	})
	return out
}

// runtimeStats summarizes the most recent films with a known runtime.
// records must be sorted oldest first.
func (b *Builder) runtimeStats(records []recommend.WatchRecord) recommend.RuntimeStats {
	var runtimes []int
	for i := len(records) - 1; i >= 0 && len(runtimes) < b.cfg.RuntimeWindow; i-- {
		if m := records[i].Metadata; m != nil && m.RuntimeMinutes > 0 {
			runtimes = append(runtimes, m.RuntimeMinutes)
		}
	}
	if len(runtimes) == 0 {
		return recommend.RuntimeStats{}
	}

	stats := recommend.RuntimeStats{Samples: len(runtimes), Min: runtimes[0], Max: runtimes[0]}
	sum := 0.0
	for _, rt := range runtimes {
		sum += float64(rt)
		stats.Min = min(stats.Min, rt)
		stats.Max = max(stats.Max, rt)
	}
	stats.Mean = sum / float64(len(runtimes))

	variance := 0.0
	for _, rt := range runtimes {
		d := float64(rt) - stats.Mean
		variance += d * d
	}
	stats.StdDev = math.Sqrt(variance / float64(len(runtimes)))
	return stats
}

func dedupeFold(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		k := strings.ToLower(strings.TrimSpace(v))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func title(r *recommend.WatchRecord) string {
	if r.Title != "" {
		return r.Title
	}
	return "#" + strconv.Itoa(r.ItemID)
}
