package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// TemplateData holds data for document template rendering.
type TemplateData struct {
	Title     string
	Author    string
	UpdatedAt time.Time
	Sections  []TemplateSection
}

type TemplateSection struct {
	Paragraphs []string
	Suggestion string
}

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
}).Parse(documentHTML))

// RenderDocumentHTML renders the document template with provided data.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// splitLines keeps single line breaks inside a section as separate
// paragraphs.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.6; max-width: 760px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #3b2f63; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    section { margin-bottom: 1.2rem; }
    .suggestion { background: #f4f1fb; padding: 0.75rem 1rem; border-left: 3px solid #3b2f63; font-style: italic; }
  </style>
</head>
<body>
  {{if .Title}}<h1>{{.Title}}</h1>{{end}}
  {{if or .Author (not .UpdatedAt.IsZero)}}<div class="meta">{{.Author}}{{if and .Author (not .UpdatedAt.IsZero)}} | {{end}}{{formatDate .UpdatedAt}}</div>{{end}}
  {{range .Sections}}<section>
    {{range .Paragraphs}}<p>{{.}}</p>
    {{end}}{{if .Suggestion}}<div class="suggestion">{{.Suggestion}}</div>{{end}}
  </section>
  {{end}}
</body>
</html>`
