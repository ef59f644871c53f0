package section

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreeParagraphs(t *testing.T) {
	text := "Intro para.\n\nSecond para about cats.\n\nThird para about dogs."
	got := Parse(text)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"Intro para.", "Second para about cats.", "Third para about dogs."}, Texts(got))
	assert.Equal(t, Section{Text: "Intro para.", Start: 0, End: 11}, got[0])
	assert.Equal(t, Section{Text: "Second para about cats.", Start: 13, End: 36}, got[1])
	assert.Equal(t, Section{Text: "Third para about dogs.", Start: 38, End: 60}, got[2])
}

func TestParseEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\n", " \n \t\n "} {
		got := Parse(text)
		assert.NotNil(t, got)
		assert.Empty(t, got, "input %q", text)
	}
}

func TestParseSkipsBlankRuns(t *testing.T) {
	got := Parse("one\n\n\n\n   \n\ntwo")
	require.Len(t, got, 2)
	assert.Equal(t, []string{"one", "two"}, Texts(got))
}

func TestParseRepeatedParagraphsGetDistinctSpans(t *testing.T) {
	text := "Same.\n\nSame.\n\nSame."
	got := Parse(text)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, 7, got[1].Start)
	assert.Equal(t, 14, got[2].Start)
}

func TestParseSingleNewlineStaysInSection(t *testing.T) {
	got := Parse("line one\nline two\n\nnext")
	require.Len(t, got, 2)
	assert.Equal(t, "line one\nline two", got[0].Text)
}

func TestParseOffsetsRoundTrip(t *testing.T) {
	inputs := []string{
		"Intro para.\n\nSecond para about cats.\n\nThird para about dogs.",
		"  leading space\n\n  indented second\n",
		"\n\nstarts with blanks\n \n\nends with blanks\n\n\n",
		"a\r\n\r\nb\r\n",
		"héllo wörld\n\nçà et là\n\n日本語の段落",
		"dup\n\ndup\n\ndup",
	}
	for _, text := range inputs {
		for _, s := range Parse(text) {
			require.GreaterOrEqual(t, s.Start, 0)
			require.LessOrEqual(t, s.Start, s.End)
			require.LessOrEqual(t, s.End, len(text))
			assert.Equal(t, s.Text, strings.TrimSpace(text[s.Start:s.End]), "input %q", text)
		}
	}
}

func TestParseIsIdempotent(t *testing.T) {
	text := "first\n\nsecond paragraph\n\n\nthird"
	assert.Equal(t, Parse(text), Parse(text))
}
