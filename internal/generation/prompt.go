package generation

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultContextLimit bounds the neighbouring text sent to a backend.
const DefaultContextLimit = 2000

var promptTemplate = template.Must(template.New("prompt").Parse(`Document Title: {{.Title}}

Writing Style: {{.Metadata.Style}}

Tone: {{.Metadata.Tone}}

Target Audience: {{.Metadata.Audience}}

Background Context: {{.Metadata.Background}}

Special Directions: {{.Metadata.Directive}}

Approximate Word Limit: {{.Metadata.WordLimit}}

Paragraph before the current paragraph: {{.Prev}}

==============

Main Point for current paragraph: {{.MainPoint}}

Current paragraph draft: {{.Text}}

==============

Paragraph after the current paragraph: {{.Next}}
`))

// BuildPrompt renders the user message for req. Metadata is expected to be
// defaulted already.
func BuildPrompt(req Request) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// TruncateContext keeps the last limit runes of prev and the first limit
// runes of next.
func TruncateContext(prev, next string, limit int) (string, string) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if r := []rune(prev); len(r) > limit {
		prev = string(r[len(r)-limit:])
	}
	if r := []rune(next); len(r) > limit {
		next = string(r[:limit])
	}
	return prev, next
}
