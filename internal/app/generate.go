package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"inkwell/api/internal/document"
	"inkwell/api/internal/editor"
	"inkwell/api/internal/generation"
	"inkwell/api/internal/rbac"
)

// GenerateInput mirrors the fields of the generate-text form.
type GenerateInput struct {
	UserText            string `json:"user_text"`
	MainPoint           string `json:"main_point"`
	Title               string `json:"title"`
	PrevParagraph       string `json:"prev_paragraph"`
	NextParagraph       string `json:"next_paragraph"`
	GenerationMode      string `json:"generation_mode"`
	WritingStyle        string `json:"writing_style"`
	TargetAudience      string `json:"target_audience"`
	Tone                string `json:"tone"`
	BackgroundContext   string `json:"background_context"`
	GenerationDirective string `json:"generation_directive"`
	WordLimit           int    `json:"word_limit"`
	Source              string `json:"source"`
	Model               string `json:"model"`
	// EnvironmentVariables is a JSON object of provider overrides.
	EnvironmentVariables EnvVars `json:"environment_variables"`
}

// EnvVars accepts either a JSON object or a string holding one.
type EnvVars string

func (e *EnvVars) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = EnvVars(s)
		return nil
	}
	*e = EnvVars(b)
	return nil
}

func (in GenerateInput) metadata() generation.Metadata {
	return generation.Metadata{
		Style:      in.WritingStyle,
		Audience:   in.TargetAudience,
		Tone:       in.Tone,
		Background: in.BackgroundContext,
		Directive:  in.GenerationDirective,
		WordLimit:  in.WordLimit,
		Source:     strings.ToLower(strings.TrimSpace(in.Source)),
		Model:      strings.TrimSpace(in.Model),
	}
}

func (s *Service) parseEnv(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil
	}
	if !s.router.AllowsCustomEnv() {
		s.logger.Info("custom environment variables disabled, ignoring request overrides")
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		s.logger.Warn("could not parse environment_variables", "err", err)
		return nil
	}
	env := make(map[string]string, len(values))
	for k, v := range values {
		env[k] = fmt.Sprint(v)
	}
	return env
}

// GenerateText runs one stateless generation request.
func (s *Service) GenerateText(ctx context.Context, session Session, in GenerateInput) (string, error) {
	if !s.Can(session.Role, rbac.ActionGenerate) {
		return "", errForbidden
	}
	mode := in.GenerationMode
	if strings.TrimSpace(mode) == "" {
		mode = string(generation.ModeIdeas)
	}
	prev, next := generation.TruncateContext(in.PrevParagraph, in.NextParagraph, s.contextLimit())
	req := generation.Request{
		Text:      in.UserText,
		MainPoint: in.MainPoint,
		Title:     in.Title,
		Prev:      prev,
		Next:      next,
		Mode:      generation.ParseMode(mode),
		Metadata:  in.metadata().WithDefaults(s.cfg.Generation.Defaults),
		Env:       s.parseEnv(string(in.EnvironmentVariables)),
	}

	if s.cfg.Generation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Generation.Timeout)
		defer cancel()
	}
	out, err := s.gen.Generate(ctx, req)
	if err != nil {
		s.logger.Error("generate text", "user_id", session.UserID, "source", req.Metadata.Source, "mode", req.Mode, "err", err)
		return "", domainError(http.StatusInternalServerError, "GENERATION_FAILED", "Failed to generate text", nil)
	}
	return out, nil
}

// OpenEditorSession starts a live session. With a filename the saved
// document is loaded and its suggestions restored; otherwise text seeds an
// unsaved draft.
func (s *Service) OpenEditorSession(ctx context.Context, session Session, filename, text string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionWrite) {
		return nil, errForbidden
	}
	if filename == "" {
		es := s.editor.Open(session.UserID, "")
		if text != "" {
			es.Restore(text, nil)
		}
		return editorPayload(es), nil
	}

	doc, err := s.Document(ctx, session, filename)
	if err != nil {
		return nil, err
	}
	content, err := document.Parse([]byte(doc.Content))
	if err != nil {
		return nil, err
	}
	meta := s.cfg.Generation.Defaults
	if content.Metadata != nil {
		meta = content.Metadata.WithDefaults(meta)
	}
	es := s.editor.Open(session.UserID, doc.Filename,
		editor.WithTitle(content.Title),
		editor.WithMetadata(meta),
	)
	es.Restore(content.Text(), content.Sections)
	return editorPayload(es), nil
}

func (s *Service) editorSession(session Session, id string) (*editor.Session, error) {
	es, ok := s.editor.Get(id)
	if !ok || es.Owner != session.UserID {
		return nil, errNoSession
	}
	return es, nil
}

func editorPayload(es *editor.Session) map[string]any {
	snap := es.Snapshot()
	payload := map[string]any{
		"id":              es.ID(),
		"filename":        es.Filename,
		"version":         snap.Version,
		"sections":        snap.Sections,
		"state":           es.State().String(),
		"current_section": nil,
	}
	if idx, ok := es.Current(); ok {
		payload["current_section"] = idx
	}
	return payload
}

func (s *Service) EditorSnapshot(session Session, id string) (map[string]any, error) {
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	return editorPayload(es), nil
}

func (s *Service) EditorText(session Session, id, text string) (map[string]any, error) {
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	es.TextChanged(text)
	return editorPayload(es), nil
}

func (s *Service) EditorCursor(session Session, id string, offset int, cause string) (map[string]any, error) {
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	es.CursorMoved(offset, editor.ParseCause(cause))
	return editorPayload(es), nil
}

func (s *Service) EditorFlush(session Session, id string) (map[string]any, error) {
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	es.Flush()
	return editorPayload(es), nil
}

// EditorGenerate dispatches a suggestion request for the current section.
// The result arrives asynchronously through the session's events.
func (s *Service) EditorGenerate(ctx context.Context, session Session, id, mode, mainPoint string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionGenerate) {
		return nil, errForbidden
	}
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	if err := es.Generate(ctx, generation.ParseMode(mode), mainPoint); err != nil {
		return nil, err
	}
	payload := editorPayload(es)
	payload["accepted"] = true
	return payload, nil
}

// SaveEditorSession writes the session's current sections to its document.
func (s *Service) SaveEditorSession(ctx context.Context, session Session, id, filename, title string) (map[string]any, error) {
	es, err := s.editorSession(session, id)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = es.Filename
	}
	if filename == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required for an unsaved draft", nil)
	}

	content := document.Content{Title: title}
	if existing, err := s.Document(ctx, session, filename); err == nil {
		if prev, err := document.Parse([]byte(existing.Content)); err == nil {
			if content.Title == "" {
				content.Title = prev.Title
			}
			content.Metadata = prev.Metadata
		}
	}
	content.Sections = es.Flush().Sections

	raw, err := content.Encode()
	if err != nil {
		return nil, err
	}
	return s.SaveDocument(ctx, session, filename, raw)
}

func (s *Service) CloseEditorSession(session Session, id string) error {
	if _, err := s.editorSession(session, id); err != nil {
		return err
	}
	s.editor.Close(id)
	return nil
}
