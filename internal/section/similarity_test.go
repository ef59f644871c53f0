package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityEdgeCases(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Alpha", b: "Alpha", want: 1},
		{name: "case and whitespace", a: "  The Cat ", b: "the cat", want: 1},
		{name: "both empty", a: "", b: "   ", want: 1},
		{name: "left empty", a: "", b: "text", want: 0},
		{name: "right empty", a: "text", b: "\n\t", want: 0},
		{name: "length prefilter", a: "ab", b: "abcdefg", want: 2.0 / 7.0},
		{name: "edit distance", a: "kitten", b: "sitting", want: 1 - 3.0/7.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestSimilarityIsSymmetricAndBounded(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"The cat sat.",
		"The cat sat on the mat.",
		"Second para about cats.",
		"Third para about dogs.",
		"héllo wörld",
		"hello world",
		"A much longer paragraph that keeps going well past the others in length.",
	}
	for _, a := range inputs {
		for _, b := range inputs {
			ab := Similarity(a, b)
			ba := Similarity(b, a)
			require.Equal(t, ab, ba, "similarity(%q, %q) not symmetric", a, b)
			require.GreaterOrEqual(t, ab, 0.0)
			require.LessOrEqual(t, ab, 1.0)
		}
		require.Equal(t, 1.0, Similarity(a, a))
	}
}

func TestLengthPrefilterStaysBelowThreshold(t *testing.T) {
	short := "Intro."
	long := "Intro. This paragraph grew a lot after the user kept typing."
	score := Similarity(short, long)
	assert.LessOrEqual(t, score, MatchThreshold)
	assert.False(t, Matches(short, long))
}

func TestSimilarityCountsRunesNotBytes(t *testing.T) {
	// Byte lengths differ by more than 2x, rune lengths do not.
	a := "ééé"
	b := "eee"
	assert.InDelta(t, 0.0, Similarity(a, b), 1e-9)
	assert.InDelta(t, 1-1.0/3.0, Similarity("ééé", "éée"), 1e-9)
}

func TestGrowingSentenceStillMatches(t *testing.T) {
	assert.True(t, Matches("The cat sat.", "The cat sat on the mat."))
}
