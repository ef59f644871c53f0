package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"inkwell/api/internal/config"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

const sampleDocument = `{"title":"Field Notes","sections":[{"text":"First paragraph.","start_offset":0,"end_offset":16,"generated_text":"A sharper first paragraph."},{"text":"Second paragraph.","start_offset":18,"end_offset":35}],"metadata":{"tone":"playful"}}`

func (e *testEnv) doForm(t *testing.T, path, token string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) saveDocument(t *testing.T, token, filename, raw string) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/documents/save", token, `{"filename":"`+filename+`","document":`+raw+`}`)
	expectStatus(t, rr, http.StatusOK)
	return decodeResponse(t, rr)
}

func TestSaveDocumentWithForm(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "form@example.com", false)

	rr := env.doForm(t, "/api/documents/save", sess.Token, url.Values{
		"filename":      {"notes"},
		"document_data": {sampleDocument},
	})
	expectStatus(t, rr, http.StatusOK)
	payload := decodeResponse(t, rr)
	if payload["filename"] != "notes.json" {
		t.Fatalf("expected .json suffix, got %v", payload["filename"])
	}
	if payload["message"] != "Document created" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if hash, _ := payload["commit"].(string); hash == "" {
		t.Fatalf("expected a history commit, got %v", payload)
	}

	rr = env.doForm(t, "/api/documents/save-as", sess.Token, url.Values{
		"filename":      {"notes.json"},
		"document_data": {sampleDocument},
	})
	expectStatus(t, rr, http.StatusOK)
	if msg := decodeResponse(t, rr)["message"]; msg != "Document updated" {
		t.Fatalf("expected update on second save, got %v", msg)
	}
}

func TestSaveDocumentRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "bad@example.com", false)

	rr := env.do(t, http.MethodPost, "/api/documents/save", sess.Token, `{"filename":"x","document":"not an object"}`)
	expectStatus(t, rr, http.StatusBadRequest)
	if code := decodeResponse(t, rr)["code"]; code != "INVALID_CONTENT" {
		t.Fatalf("expected INVALID_CONTENT, got %v", code)
	}

	rr = env.do(t, http.MethodPost, "/api/documents/save", sess.Token, `{"filename":".hidden","document":{}}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodPost, "/api/documents/save", sess.Token, `{"document":{}}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodPost, "/api/documents/save", sess.Token, `{not json`)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "life@example.com", false)
	env.saveDocument(t, sess.Token, "essay", sampleDocument)

	rr := env.do(t, http.MethodGet, "/api/documents", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	files := decodeResponse(t, rr)["files"].([]any)
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	if entry := files[0].(map[string]any); entry["filename"] != "essay.json" || entry["title"] != "Field Notes" {
		t.Fatalf("unexpected listing %v", entry)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/essay.json", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	doc := decodeResponse(t, rr)["document"].(map[string]any)
	sections := doc["sections"].([]any)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if gen := sections[0].(map[string]any)["generated_text"]; gen != "A sharper first paragraph." {
		t.Fatalf("suggestion lost on load: %v", gen)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/essay.json/download", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "essay.json") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if rr.Body.String() != sampleDocument {
		t.Fatalf("download should return stored content verbatim")
	}

	rr = env.do(t, http.MethodDelete, "/api/documents/essay.json", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	rr = env.do(t, http.MethodGet, "/api/documents/essay.json", sess.Token, nil)
	expectStatus(t, rr, http.StatusNotFound)
	rr = env.do(t, http.MethodDelete, "/api/documents/essay.json", sess.Token, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestDocumentsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice@example.com", false)
	bob := env.signUp(t, "bob@example.com", false)
	env.saveDocument(t, alice.Token, "private", sampleDocument)

	rr := env.do(t, http.MethodGet, "/api/documents/private.json", bob.Token, nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, http.MethodGet, "/api/documents", bob.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if files := decodeResponse(t, rr)["files"].([]any); len(files) != 0 {
		t.Fatalf("bob should not see alice's files, got %v", files)
	}
}

func TestDocumentHistory(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "hist@example.com", false)

	first := env.saveDocument(t, sess.Token, "draft", `{"title":"v1","sections":[]}`)
	env.saveDocument(t, sess.Token, "draft", `{"title":"v1","sections":[]}`)
	env.saveDocument(t, sess.Token, "draft", `{"title":"v2","sections":[]}`)

	rr := env.do(t, http.MethodGet, "/api/documents/draft.json/history", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	commits := decodeResponse(t, rr)["commits"].([]any)
	if len(commits) != 2 {
		t.Fatalf("unchanged saves must not add commits, got %d", len(commits))
	}

	rr = env.do(t, http.MethodGet, "/api/documents/draft.json/history/"+first["commit"].(string), sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if title := decodeResponse(t, rr)["document"].(map[string]any)["title"]; title != "v1" {
		t.Fatalf("expected first version, got %v", title)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/draft.json/history?limit=abc", sess.Token, nil)
	expectStatus(t, rr, http.StatusUnprocessableEntity)
}

func TestExportHTML(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "export@example.com", false)
	env.saveDocument(t, sess.Token, "report", sampleDocument)

	rr := env.do(t, http.MethodGet, "/api/documents/report.json/export?format=html&suggestions=true", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Field Notes") || !strings.Contains(body, "A sharper first paragraph.") {
		t.Fatalf("export missing title or suggestion: %s", body)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/report.json/export?format=html", sess.Token, nil)
	if strings.Contains(rr.Body.String(), "A sharper first paragraph.") {
		t.Fatalf("suggestions should be omitted unless requested")
	}

	rr = env.do(t, http.MethodGet, "/api/documents/report.json/export?format=rtf", sess.Token, nil)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodGet, "/api/documents/report.json/export?format=html&store=true", sess.Token, nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if code := decodeResponse(t, rr)["code"]; code != "STORAGE_DISABLED" {
		t.Fatalf("expected STORAGE_DISABLED, got %v", code)
	}
}

func TestSnapshots(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "snap@example.com", false)
	bob := env.signUp(t, "other@example.com", false)

	rr := env.do(t, http.MethodPost, "/api/documents/missing.json/snapshots", alice.Token, nil)
	expectStatus(t, rr, http.StatusNotFound)

	env.saveDocument(t, alice.Token, "book", sampleDocument)
	rr = env.do(t, http.MethodPost, "/api/documents/book.json/snapshots", alice.Token, nil)
	expectStatus(t, rr, http.StatusCreated)
	name := decodeResponse(t, rr)["name"].(string)
	if !strings.HasSuffix(name, "_book.json") {
		t.Fatalf("unexpected snapshot name %q", name)
	}

	rr = env.do(t, http.MethodGet, "/api/documents/book.json/snapshots", alice.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if snaps := decodeResponse(t, rr)["snapshots"].([]any); len(snaps) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snaps))
	}

	rr = env.do(t, http.MethodGet, "/api/snapshots/"+name, alice.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if doc := decodeResponse(t, rr)["document"].(map[string]any); doc["title"] != "Field Notes" {
		t.Fatalf("unexpected snapshot content %v", doc)
	}

	rr = env.do(t, http.MethodGet, "/api/snapshots/"+name, bob.Token, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []store.Document
	deleted []int64
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	var out []search.Result
	for _, d := range f.indexed {
		if d.UserID == q.UserID && strings.Contains(d.BodyText, q.Text) {
			out = append(out, search.Result{Filename: d.Filename, Title: d.Title})
		}
	}
	return search.Response{Results: out, Total: len(out), Query: q.Text, Engine: "fake"}
}

func (f *fakeSearch) IndexDocument(doc store.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
}

func (f *fakeSearch) DeleteDocument(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeSearch) ReindexAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed), nil
}

func TestSearchDocuments(t *testing.T) {
	idx := &fakeSearch{}
	env := newTestEnv(t, func(_ *config.Config, d *Deps) { d.Search = idx })
	sess := env.signUp(t, "search@example.com", true)
	env.saveDocument(t, sess.Token, "notes", sampleDocument)

	if len(idx.indexed) != 1 || !strings.Contains(idx.indexed[0].BodyText, "Second paragraph.") {
		t.Fatalf("saved document should be indexed with its body text, got %+v", idx.indexed)
	}

	rr := env.do(t, http.MethodGet, "/api/search?q=Second&limit=5", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	payload := decodeResponse(t, rr)
	if payload["engine"] != "fake" {
		t.Fatalf("unexpected engine %v", payload["engine"])
	}
	if results := payload["results"].([]any); len(results) != 1 {
		t.Fatalf("expected one hit, got %v", results)
	}
	if q := idx.queries[0]; q.UserID != sess.UserID || q.Limit != 5 {
		t.Fatalf("query not scoped to caller: %+v", q)
	}

	rr = env.do(t, http.MethodGet, "/api/search?q=", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if engine := decodeResponse(t, rr)["engine"]; engine != "none" {
		t.Fatalf("empty query should not hit the index, got %v", engine)
	}

	rr = env.do(t, http.MethodGet, "/api/search?q=x&offset=-1", sess.Token, nil)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = env.do(t, http.MethodPost, "/api/admin/reindex", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodDelete, "/api/documents/notes.json", sess.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if len(idx.deleted) != 1 || idx.deleted[0] != idx.indexed[0].ID {
		t.Fatalf("delete should drop the document from search, got %v", idx.deleted)
	}
}

func TestGenerateTextForm(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Response = "An improved paragraph."
	sess := env.signUp(t, "gen@example.com", false)

	rr := env.doForm(t, "/api/generate-text", sess.Token, url.Values{
		"user_text":      {"a rough paragraph"},
		"prev_paragraph": {strings.Repeat("p", 5000)},
		"tone":           {"excited"},
		"word_limit":     {"80"},
	})
	expectStatus(t, rr, http.StatusOK)
	if text := decodeResponse(t, rr)["generated_text"]; text != "An improved paragraph." {
		t.Fatalf("unexpected generated text %v", text)
	}

	calls := env.mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one generator call, got %d", len(calls))
	}
	req := calls[0]
	if req.Mode != "ideas" {
		t.Fatalf("mode should default to ideas, got %q", req.Mode)
	}
	if req.Metadata.Tone != "excited" || req.Metadata.WordLimit != 80 || req.Metadata.Style != "formal" {
		t.Fatalf("metadata not merged with defaults: %+v", req.Metadata)
	}
	if len([]rune(req.Prev)) > 2000 {
		t.Fatalf("previous paragraph not truncated: %d runes", len([]rune(req.Prev)))
	}

	rr = env.doForm(t, "/api/generate-text", sess.Token, url.Values{"word_limit": {"many"}})
	expectStatus(t, rr, http.StatusUnprocessableEntity)
}

func TestGenerateTextJSONWithEnvOverrides(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp(t, "json@example.com", false)

	rr := env.do(t, http.MethodPost, "/api/generate-text", sess.Token, map[string]any{
		"user_text":             "draft",
		"generation_mode":       "proofread",
		"environment_variables": map[string]any{"TEMPERATURE": 0.2},
	})
	expectStatus(t, rr, http.StatusOK)
	req := env.mock.Calls()[0]
	if req.Mode != "proofread" {
		t.Fatalf("expected proofread, got %q", req.Mode)
	}
	if req.Env["TEMPERATURE"] != "0.2" {
		t.Fatalf("expected env override to pass through, got %v", req.Env)
	}
}

func TestGenerateTextIgnoresEnvWhenDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.Generation.AllowCustomEnv = false
	})
	sess := env.signUp(t, "noenv@example.com", false)

	rr := env.do(t, http.MethodPost, "/api/generate-text", sess.Token, map[string]any{
		"user_text":             "draft",
		"environment_variables": `{"OPENAI_API_KEY":"sk-test"}`,
	})
	expectStatus(t, rr, http.StatusOK)
	if got := env.mock.Calls()[0].Env; got != nil {
		t.Fatalf("env overrides must be dropped, got %v", got)
	}
}

func TestGenerateTextFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Err = errors.New("upstream exploded")
	sess := env.signUp(t, "fail@example.com", false)

	rr := env.do(t, http.MethodPost, "/api/generate-text", sess.Token, map[string]any{"user_text": "draft"})
	expectStatus(t, rr, http.StatusInternalServerError)
	payload := decodeResponse(t, rr)
	if payload["code"] != "GENERATION_FAILED" {
		t.Fatalf("expected GENERATION_FAILED, got %v", payload["code"])
	}
	if strings.Contains(payload["error"].(string), "exploded") {
		t.Fatalf("upstream error leaked to client: %v", payload["error"])
	}
}
