// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// SubgenreRule describes one subgenre within a parent genre. An item matches
// when it carries the parent genre and any of the rule's keywords.
type SubgenreRule struct {
	Genre    string   `koanf:"genre" json:"genre"`
	Name     string   `koanf:"name" json:"name"`
	Keywords []string `koanf:"keywords" json:"keywords"`
}

// NicheRule describes a niche category. An item matches when it carries any
// of the rule's genres or keywords.
type NicheRule struct {
	Name     string   `koanf:"name" json:"name"`
	Genres   []string `koanf:"genres" json:"genres"`
	Keywords []string `koanf:"keywords" json:"keywords"`
}

// Taxonomy is the fixed set of subgenre and niche rules.
type Taxonomy struct {
	Subgenres []SubgenreRule `koanf:"subgenres" json:"subgenres"`
	Niches    []NicheRule    `koanf:"niches" json:"niches"`
}

// DefaultTaxonomy returns the built-in film taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Subgenres: []SubgenreRule{
			{Genre: "Action", Name: "superhero", Keywords: []string{"superhero", "comic book", "based on comic", "marvel", "dc comics"}},
			{Genre: "Action", Name: "martial arts", Keywords: []string{"martial arts", "kung fu", "karate", "wuxia"}},
			{Genre: "Action", Name: "heist", Keywords: []string{"heist", "robbery", "bank robbery"}},
			{Genre: "Action", Name: "spy", Keywords: []string{"spy", "espionage", "secret agent"}},
			{Genre: "Action", Name: "disaster", Keywords: []string{"disaster", "natural disaster", "apocalypse"}},
			{Genre: "Horror", Name: "slasher", Keywords: []string{"slasher", "serial killer", "masked killer"}},
			{Genre: "Horror", Name: "supernatural", Keywords: []string{"supernatural", "ghost", "haunted house", "demon", "possession"}},
			{Genre: "Horror", Name: "found footage", Keywords: []string{"found footage", "mockumentary"}},
			{Genre: "Horror", Name: "zombie", Keywords: []string{"zombie", "undead", "outbreak"}},
			{Genre: "Science Fiction", Name: "space", Keywords: []string{"space", "outer space", "spacecraft", "alien planet"}},
			{Genre: "Science Fiction", Name: "time travel", Keywords: []string{"time travel", "time loop", "time machine"}},
			{Genre: "Science Fiction", Name: "dystopia", Keywords: []string{"dystopia", "post-apocalyptic", "totalitarian"}},
			{Genre: "Science Fiction", Name: "cyberpunk", Keywords: []string{"cyberpunk", "artificial intelligence", "virtual reality", "android"}},
			{Genre: "Comedy", Name: "romantic comedy", Keywords: []string{"romantic comedy", "romcom"}},
			{Genre: "Comedy", Name: "parody", Keywords: []string{"parody", "spoof", "satire"}},
			{Genre: "Comedy", Name: "dark comedy", Keywords: []string{"dark comedy", "black comedy"}},
			{Genre: "Drama", Name: "biographical", Keywords: []string{"biography", "biographical", "based on true story"}},
			{Genre: "Drama", Name: "courtroom", Keywords: []string{"courtroom", "trial", "lawyer"}},
			{Genre: "Drama", Name: "coming of age", Keywords: []string{"coming of age", "teenager", "adolescence"}},
			{Genre: "Thriller", Name: "psychological", Keywords: []string{"psychological thriller", "psychological", "paranoia"}},
			{Genre: "Thriller", Name: "crime", Keywords: []string{"crime", "detective", "murder investigation"}},
			{Genre: "Thriller", Name: "conspiracy", Keywords: []string{"conspiracy", "cover-up", "government"}},
			{Genre: "Fantasy", Name: "sword and sorcery", Keywords: []string{"sword and sorcery", "sorcery", "dragon", "wizard"}},
			{Genre: "Fantasy", Name: "fairy tale", Keywords: []string{"fairy tale", "based on fairy tale", "princess"}},
		},
		Niches: []NicheRule{
			{Name: "anime", Keywords: []string{"anime", "based on manga"}},
			{Name: "stand-up", Keywords: []string{"stand-up comedy", "stand-up special", "stand up comedy"}},
			{Name: "documentary", Genres: []string{"Documentary"}},
			{Name: "concert film", Genres: []string{"Music"}, Keywords: []string{"concert film", "concert", "live performance"}},
		},
	}
}

// Validate checks the rules for empty names or keyword lists.
func (t Taxonomy) Validate() error {
	for i, r := range t.Subgenres {
		if r.Genre == "" || r.Name == "" {
			return fmt.Errorf("taxonomy.subgenres[%d]: genre and name are required", i)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("taxonomy.subgenres[%d] (%s): at least one keyword is required", i, r.Name)
		}
	}
	for i, r := range t.Niches {
		if r.Name == "" {
			return fmt.Errorf("taxonomy.niches[%d]: name is required", i)
		}
		if len(r.Genres) == 0 && len(r.Keywords) == 0 {
			return fmt.Errorf("taxonomy.niches[%d] (%s): genres or keywords are required", i, r.Name)
		}
	}
	return nil
}

// Clone returns a deep copy of the taxonomy.
func (t Taxonomy) Clone() Taxonomy {
	out := Taxonomy{
		Subgenres: make([]SubgenreRule, len(t.Subgenres)),
		Niches:    make([]NicheRule, len(t.Niches)),
	}
	for i, r := range t.Subgenres {
		r.Keywords = slices.Clone(r.Keywords)
		out.Subgenres[i] = r
	}
	for i, r := range t.Niches {
		r.Genres = slices.Clone(r.Genres)
		r.Keywords = slices.Clone(r.Keywords)
		out.Niches[i] = r
	}
	return out
}

// MatchSubgenres returns the subgenre rules matched by the metadata.
// Returns nil when metadata is missing.
func (t Taxonomy) MatchSubgenres(m *ItemMetadata) []SubgenreRule {
	if !m.HasGenres() || len(m.Keywords) == 0 {
		return nil
	}
	var out []SubgenreRule
	for _, r := range t.Subgenres {
		if ContainsFold(m.Genres, r.Genre) && KeywordMatch(m.Keywords, r.Keywords) {
			out = append(out, r)
		}
	}
	return out
}

// MatchNiches returns the names of niches matched by the metadata.
func (t Taxonomy) MatchNiches(m *ItemMetadata) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, r := range t.Niches {
		if anyFold(m.Genres, r.Genres) || KeywordMatch(m.Keywords, r.Keywords) {
			out = append(out, r.Name)
		}
	}
	return out
}

// KeywordMatch reports whether any rule keyword occurs as a whole-word
// phrase in one of the item keywords, ignoring case and punctuation. "trial"
// matches "murder trial" but not "industrial".
func KeywordMatch(itemKeywords, ruleKeywords []string) bool {
	if len(itemKeywords) == 0 || len(ruleKeywords) == 0 {
		return false
	}
	rules := make([][]string, 0, len(ruleKeywords))
	for _, rk := range ruleKeywords {
		if words := keywordWords(rk); len(words) > 0 {
			rules = append(rules, words)
		}
	}
	for _, ik := range itemKeywords {
		words := keywordWords(ik)
		for _, rule := range rules {
			if containsPhrase(words, rule) {
				return true
			}
		}
	}
	return false
}

// keywordWords lowercases s and splits it on anything that is not a letter
// or digit.
func keywordWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		if slices.Equal(words[i:i+len(phrase)], phrase) {
			return true
		}
	}
	return false
}

// ContainsFold reports whether list contains s, ignoring case.
func ContainsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func anyFold(list, wanted []string) bool {
	for _, w := range wanted {
		if ContainsFold(list, w) {
			return true
		}
	}
	return false
}
