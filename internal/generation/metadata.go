package generation

// Metadata carries document level writing preferences.
type Metadata struct {
	Style      string `json:"writing_style" yaml:"writing_style"`
	Audience   string `json:"target_audience" yaml:"target_audience"`
	Tone       string `json:"tone" yaml:"tone"`
	Background string `json:"background_context" yaml:"background_context"`
	Directive  string `json:"generation_directive" yaml:"generation_directive"`
	WordLimit  int    `json:"word_limit" yaml:"word_limit"`
	Source     string `json:"source" yaml:"source"`
	Model      string `json:"model" yaml:"model"`
}

// DefaultMetadata returns the preferences used when a document sets none.
func DefaultMetadata() Metadata {
	return Metadata{
		Style:      "formal",
		Audience:   "general public",
		Tone:       "neutral",
		Background: "none provided",
		Directive:  "use good grammar.  Be concise and clear.",
		WordLimit:  250,
	}
}

// WithDefaults fills every empty field of m from base.
func (m Metadata) WithDefaults(base Metadata) Metadata {
	if m.Style == "" {
		m.Style = base.Style
	}
	if m.Audience == "" {
		m.Audience = base.Audience
	}
	if m.Tone == "" {
		m.Tone = base.Tone
	}
	if m.Background == "" {
		m.Background = base.Background
	}
	if m.Directive == "" {
		m.Directive = base.Directive
	}
	if m.WordLimit <= 0 {
		m.WordLimit = base.WordLimit
	}
	if m.Source == "" {
		m.Source = base.Source
	}
	if m.Model == "" {
		m.Model = base.Model
	}
	return m
}

// Request is a single generation call for one section.
type Request struct {
	// Text is the current section draft.
	Text string
	// MainPoint is an optional author note about what the section should say.
	MainPoint string
	Title     string
	Prev      string
	Next      string
	Mode      Mode
	Metadata  Metadata
	// Env carries per-request provider overrides such as OPENAI_API_KEY.
	// The router only honours it when custom env vars are allowed.
	Env map[string]string
}
