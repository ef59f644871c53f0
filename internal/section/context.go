package section

import "unicode/utf8"

// DefaultContextChars is the per-side context budget sent with a generation request.
const DefaultContextChars = 2000

// BuildContext collects neighbouring section text around current.
//
// prev walks backward and prepends, next walks forward and appends, both
// joined by a blank line. The budget is checked before each section is added,
// so either side may exceed maxChars by up to one section. An out-of-range
// current yields empty strings.
func BuildContext(sections []Section, current, maxChars int) (prev, next string) {
	if current < 0 || current >= len(sections) {
		return "", ""
	}
	if maxChars <= 0 {
		maxChars = DefaultContextChars
	}

	for i := current - 1; i >= 0; i-- {
		if utf8.RuneCountInString(prev) >= maxChars {
			break
		}
		if prev == "" {
			prev = sections[i].Text
			continue
		}
		prev = sections[i].Text + paragraphSeparator + prev
	}

	for i := current + 1; i < len(sections); i++ {
		if utf8.RuneCountInString(next) >= maxChars {
			break
		}
		if next == "" {
			next = sections[i].Text
			continue
		}
		next = next + paragraphSeparator + sections[i].Text
	}
	return prev, next
}
