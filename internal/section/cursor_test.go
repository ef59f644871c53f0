package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	sections := Parse("Intro para.\n\nSecond para about cats.\n\nThird para about dogs.")

	cases := []struct {
		name   string
		offset int
		want   int
		ok     bool
	}{
		{name: "start of doc", offset: 0, want: 0, ok: true},
		{name: "end boundary inclusive", offset: 11, want: 0, ok: true},
		{name: "blank line gap", offset: 12, want: NoSection, ok: false},
		{name: "second start", offset: 13, want: 1, ok: true},
		{name: "second end", offset: 36, want: 1, ok: true},
		{name: "last char", offset: 60, want: 2, ok: true},
		{name: "past end", offset: 61, want: NoSection, ok: false},
		{name: "negative", offset: -1, want: NoSection, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Locate(sections, tc.offset)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestLocateEmpty(t *testing.T) {
	idx, ok := Locate(nil, 0)
	assert.Equal(t, NoSection, idx)
	assert.False(t, ok)
}

func TestLocateAdjacentSpansPreferFirst(t *testing.T) {
	sections := []Section{{Text: "a", Start: 0, End: 5}, {Text: "b", Start: 5, End: 9}}
	idx, ok := Locate(sections, 5)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestTrackerReportsOnlyChanges(t *testing.T) {
	sections := Parse("first paragraph\n\nsecond paragraph")
	tr := NewTracker()

	idx, ok, changed := tr.Update(sections, 2)
	assert.Equal(t, 0, idx)
	assert.True(t, ok)
	assert.True(t, changed)

	_, _, changed = tr.Update(sections, 5)
	assert.False(t, changed, "same section must not be reported again")

	idx, _, changed = tr.Update(sections, 20)
	assert.Equal(t, 1, idx)
	assert.True(t, changed)

	idx, ok, changed = tr.Update(sections, 16)
	assert.Equal(t, NoSection, idx)
	assert.False(t, ok)
	assert.True(t, changed)

	_, _, changed = tr.Update(nil, 0)
	assert.False(t, changed)

	cur, ok := tr.Current()
	assert.Equal(t, NoSection, cur)
	assert.False(t, ok)
}
