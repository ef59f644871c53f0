// Package generation turns a section plus its surrounding context into a
// prompt and dispatches it to a language model backend.
package generation

import "strings"

// Mode selects the system instruction sent with a request.
type Mode string

const (
	ModeIdeas     Mode = "ideas"
	ModeRewrite   Mode = "rewrite"
	ModeImprove   Mode = "improve"
	ModeProofread Mode = "proofread"
	// ModeDefault is used for empty or unrecognised mode names.
	ModeDefault Mode = "default"
)

// ParseMode normalises a client supplied mode name.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeIdeas, ModeRewrite, ModeImprove, ModeProofread:
		return m
	default:
		return ModeDefault
	}
}

const sharedGuidance = `
Take into account all of the provided additional information.
Do not repeat information in the previous paragraph, but build upon it and refer to it if relevant.
Anticipate the next paragraph if useful.`

var systemPrompts = map[Mode]string{
	ModeIdeas: `Review the current paragraph draft against its main point and surrounding paragraphs.
Respond with a bulleted list of specific, actionable improvement suggestions.
Do not rewrite the paragraph yourself.` + sharedGuidance,

	ModeRewrite: `Completely rewrite the current paragraph draft from scratch so it delivers the main point
with greater clarity, engagement, and impact. Keep the facts, change the structure freely.` + sharedGuidance,

	ModeImprove: `Enhance the provided paragraph draft while keeping its structure and voice.
Focus on:
- Strengthening word choices
- Smoothing the flow between sentences
- Tightening redundant phrasing` + sharedGuidance,

	ModeProofread: `Proofread the current paragraph draft and return a corrected version. Fix only:
- Grammar errors
- Spelling mistakes
- Punctuation
Do not change meaning, tone, or structure.`,

	ModeDefault: `Rewrite or improve the provided paragraph draft based on the main point and current draft.
If the current draft is provided, focus on improving that draft but rewrite it if there are conflicts.
If not, write an entirely new paragraph.` + sharedGuidance,
}

// SystemPrompt returns the instruction for m, falling back to the default.
func (m Mode) SystemPrompt() string {
	if p, ok := systemPrompts[m]; ok {
		return p
	}
	return systemPrompts[ModeDefault]
}
