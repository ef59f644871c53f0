package section

import (
	"regexp"
	"strings"
)

var blankLine = regexp.MustCompile(`\n\s*\n`)

// Parse splits text into sections on blank-line boundaries.
//
// Each piece is searched for starting where the previous one ended, so
// repeated identical paragraphs get distinct spans. Start and End bound the
// untrimmed piece; Text is trimmed.
func Parse(text string) []Section {
	sections := make([]Section, 0)
	if strings.TrimSpace(text) == "" {
		return sections
	}

	cursor := 0
	for _, piece := range blankLine.Split(text, -1) {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		idx := strings.Index(text[cursor:], piece)
		if idx < 0 {
			// Split pieces always occur in order; guard anyway.
			continue
		}
		start := cursor + idx
		end := start + len(piece)
		sections = append(sections, Section{
			Text:  trimmed,
			Start: start,
			End:   end,
		})
		cursor = end
	}
	return sections
}
