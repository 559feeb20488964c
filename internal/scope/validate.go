package scope

import (
	"sort"
	"strings"
)

// ValidationResult reports whether a dataset reference resolves, with ranked
// suggestions when it does not.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Validate checks a dataset reference against the available names. Patterns
// (aliases and globs) are valid even when they currently match nothing; a
// plain literal that matches nothing yields edit-distance suggestions.
func Validate(input string, available []string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: true}
	}
	if strings.Contains(input, ":") || strings.ContainsAny(input, "*?[") {
		return ValidationResult{Valid: true}
	}
	for _, name := range available {
		if name == input {
			return ValidationResult{Valid: true}
		}
	}

	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	limit := len(input)/2 + 1
	for _, name := range available {
		d := levenshtein(input, name)
		if d <= limit {
			candidates = append(candidates, scored{name, d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return ValidationResult{Valid: false, Suggestions: out}
}

// PatternSuggestion pairs a candidate pattern with how many datasets it
// currently matches.
type PatternSuggestion struct {
	Pattern    string `json:"pattern"`
	MatchCount int    `json:"match_count"`
}

// SuggestPatterns proposes alias and glob patterns ranked by match count.
// Zero-count patterns are excluded.
func SuggestPatterns(available []string) []PatternSuggestion {
	var out []PatternSuggestion
	add := func(pattern string) {
		if n := len(ExpandPattern(pattern, available)); n > 0 {
			out = append(out, PatternSuggestion{Pattern: pattern, MatchCount: n})
		}
	}
	for ns, vocab := range aliasVocabulary {
		for val := range vocab {
			add(ns + ":" + val)
		}
	}
	add("version:latest")

	// Propose prefix globs for shared hyphenated prefixes.
	prefixes := map[string]int{}
	for _, name := range available {
		if i := strings.Index(name, "-"); i > 0 {
			prefixes[name[:i]]++
		}
	}
	for p, n := range prefixes {
		if n >= 2 {
			add(p + "-*")
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
