package section

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// MatchThreshold is the similarity a pair must exceed to count as the same
// logical section.
const MatchThreshold = 0.5

// Similarity returns a normalized lexical similarity in [0,1].
//
// When one string is more than twice as long as the other the length ratio is
// returned without computing edit distance; under MatchThreshold that ratio is
// already a non-match.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	minLen, maxLen := la, lb
	if minLen > maxLen {
		minLen, maxLen = maxLen, minLen
	}
	if maxLen > 2*minLen {
		return float64(minLen) / float64(maxLen)
	}

	d := matchr.Levenshtein(a, b)
	score := 1 - float64(d)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// Matches reports whether a and b are similar enough to be treated as the
// same section.
func Matches(a, b string) bool {
	return Similarity(a, b) > MatchThreshold
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
