package section

// NoSection is the index reported when a cursor is outside every section.
const NoSection = -1

// Locate returns the index of the first section whose span contains offset,
// inclusive on both ends.
func Locate(sections []Section, offset int) (int, bool) {
	for i, s := range sections {
		if s.Start <= offset && offset <= s.End {
			return i, true
		}
	}
	return NoSection, false
}

// Tracker remembers the last resolved section so repeated lookups inside the
// same section are not reported as changes. It is not safe for concurrent use.
type Tracker struct {
	current int
}

// NewTracker returns a tracker with no section selected.
func NewTracker() *Tracker {
	return &Tracker{current: NoSection}
}

// Current returns the last resolved index.
func (t *Tracker) Current() (int, bool) {
	return t.current, t.current != NoSection
}

// Update resolves offset against sections. changed is true only when the
// resolved index differs from the previous one.
func (t *Tracker) Update(sections []Section, offset int) (idx int, ok bool, changed bool) {
	idx, ok = Locate(sections, offset)
	if idx == t.current {
		return idx, ok, false
	}
	t.current = idx
	return idx, ok, true
}

// Reset forgets the current section.
func (t *Tracker) Reset() bool {
	if t.current == NoSection {
		return false
	}
	t.current = NoSection
	return true
}
