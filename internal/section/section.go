// Package section derives paragraph sections from raw document text and
// carries AI suggestions across re-parses.
//
// Everything here is pure: callers own the mutable document state and pass
// explicit inputs in. Offsets are byte offsets into the parsed string.
package section

import "strings"

// Section is a contiguous span of document text between blank-line boundaries.
type Section struct {
	Text      string `json:"text"`
	Start     int    `json:"start_offset"`
	End       int    `json:"end_offset"`
	Generated string `json:"generated_text,omitempty"`
	Original  string `json:"original_text,omitempty"`
}

// Basis is the text a carried suggestion is compared against.
func (s Section) Basis() string {
	if s.Original != "" {
		return s.Original
	}
	return s.Text
}

// HasSuggestion reports whether the section carries a generated suggestion.
func (s Section) HasSuggestion() bool {
	return s.Generated != ""
}

// Clone returns a copy of the list so callers can mutate it without
// touching a published snapshot.
func Clone(sections []Section) []Section {
	out := make([]Section, len(sections))
	copy(out, sections)
	return out
}

// Texts returns the trimmed text of every section in order.
func Texts(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Text
	}
	return out
}

// Join renders sections back into a document using paragraph separators.
func Join(sections []Section) string {
	return strings.Join(Texts(sections), paragraphSeparator)
}

const paragraphSeparator = "\n\n"
