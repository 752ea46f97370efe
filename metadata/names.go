package metadata

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Kellerman81/go_media_organizer/logger"
)

// NormalizeName lowercases, removes diacritics and punctuation and sorts the
// tokens so "Wong Kar-wai" and "Kar Wai Wong" are equal.
func NormalizeName(name string) string {
	name = strings.ToLower(logger.StringReplaceDiacritics(logger.NormalizeWidth(name)))
	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, name)
	tokens := strings.Fields(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// NormalizeTitle keeps the word order.
func NormalizeTitle(title string) string {
	title = strings.ToLower(logger.StringReplaceDiacritics(logger.NormalizeWidth(title)))
	title = strings.ReplaceAll(title, "&", " and ")
	title = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, title)
	return strings.Join(strings.Fields(title), " ")
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Similarity is 1 minus the levenshtein distance of the normalized titles
// divided by the longer length.
func Similarity(a, b string) float64 {
	ra, rb := []rune(NormalizeTitle(a)), []rune(NormalizeTitle(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func isMixed(name string) bool {
	return logger.HasCJK(name) && logger.HasLatin(name)
}

// ResolveCommonName picks one name for a set of folder or person names that
// denote the same entity. Names carrying both a CJK and a latin part win,
// then the most frequent normalized form, then the longest name.
func ResolveCommonName(names []string) string {
	type candidate struct {
		name  string
		key   string
		mixed bool
		count int
		runes int
	}
	cands := make([]candidate, 0, len(names))
	counts := make(map[string]int, len(names))
	for idx := range names {
		name := strings.TrimSpace(names[idx])
		if name == "" {
			continue
		}
		key := NormalizeName(name)
		counts[key]++
		cands = append(cands, candidate{name: name, key: key, mixed: isMixed(name), runes: utf8.RuneCountInString(name)})
	}
	if len(cands) == 0 {
		return ""
	}
	best := -1
	for idx := range cands {
		cands[idx].count = counts[cands[idx].key]
		if best == -1 {
			best = idx
			continue
		}
		c, b := &cands[idx], &cands[best]
		switch {
		case c.mixed != b.mixed:
			if c.mixed {
				best = idx
			}
		case c.count != b.count:
			if c.count > b.count {
				best = idx
			}
		case c.runes > b.runes:
			best = idx
		}
	}
	return cands[best].name
}
