package section

// Reconcile carries Generated/Original from prev onto next.
//
// Matching is greedy and index-biased: the same index is tried first, then the
// first unconsumed old section above MatchThreshold in old order. An old
// section donates its suggestion at most once. Neither input is mutated.
func Reconcile(next, prev []Section) []Section {
	out := Clone(next)
	consumed := make([]bool, len(prev))

	for i := range out {
		out[i].Generated = ""
		out[i].Original = ""

		match := -1
		if i < len(prev) && candidate(prev[i], consumed[i]) && Matches(prev[i].Basis(), out[i].Text) {
			match = i
		}
		if match < 0 {
			for j := range prev {
				if j == i || !candidate(prev[j], consumed[j]) {
					continue
				}
				if Matches(prev[j].Basis(), out[i].Text) {
					match = j
					break
				}
			}
		}
		if match < 0 {
			continue
		}

		consumed[match] = true
		out[i].Generated = prev[match].Generated
		out[i].Original = prev[match].Basis()
	}
	return out
}

func candidate(s Section, consumed bool) bool {
	return !consumed && s.HasSuggestion()
}
