package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"inkwell/api/internal/document"
	"inkwell/api/internal/section"
)

func sampleDoc() document.Content {
	return document.Content{
		Title: "Field Notes",
		Sections: []section.Section{
			{Text: "First paragraph.\nSecond line.", Generated: "A sharper first paragraph."},
			{Text: "Closing <thoughts> & more."},
		},
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(nil)
	res, err := svc.Export(context.Background(), sampleDoc(), Request{
		Filename:  "notes.json",
		Format:    FormatHTML,
		Author:    "Avery",
		UpdatedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	html := string(res.Data)
	for _, want := range []string{
		"<h1>Field Notes</h1>",
		"<p>First paragraph.</p>",
		"<p>Second line.</p>",
		"Closing &lt;thoughts&gt; &amp; more.",
		"Avery | Mar 9, 2024",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "A sharper first paragraph.") {
		t.Error("suggestions should be omitted by default")
	}
	if res.Filename != "Field-Notes.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("unexpected result metadata %+v", res)
	}
}

func TestExportIncludesSuggestions(t *testing.T) {
	svc := NewService(nil)
	res, err := svc.Export(context.Background(), sampleDoc(), Request{Format: FormatHTML, IncludeSuggestions: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(string(res.Data), `<div class="suggestion">A sharper first paragraph.</div>`) {
		t.Fatal("expected suggestion block")
	}
}

func TestExportDispatchesByFormat(t *testing.T) {
	var got []string
	fake := func(kind string) renderFunc {
		return func(_ context.Context, html, title string) (*Result, error) {
			got = append(got, kind+":"+title)
			return &Result{Data: []byte(html), Filename: title + "." + kind}, nil
		}
	}
	svc := &Service{pdf: fake("pdf"), docx: fake("docx")}
	doc := document.Content{Sections: []section.Section{{Text: "x"}}}

	for _, f := range []Format{FormatPDF, FormatDOCX} {
		if _, err := svc.Export(context.Background(), doc, Request{Filename: "draft.json", Format: f}); err != nil {
			t.Fatalf("Export(%s) error = %v", f, err)
		}
	}
	if strings.Join(got, ",") != "pdf:draft,docx:draft" {
		t.Fatalf("unexpected renderer calls %v", got)
	}

	if _, err := svc.Export(context.Background(), doc, Request{Format: "odt"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatPDF, "PDF": FormatPDF, "docx": FormatDOCX, " html ": FormatHTML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("rtf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPublishWithoutBucket(t *testing.T) {
	svc := NewService(nil)
	if svc.StorageEnabled() {
		t.Fatal("expected storage disabled")
	}
	if _, err := svc.Publish(context.Background(), "u", &Result{}); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected ErrStorageDisabled, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"My Essay: Draft #2":    "My-Essay-Draft-2",
		"???":                   "document",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b/é"); got != "a%20b%2F%C3%A9" {
		t.Fatalf("unexpected encoding %q", got)
	}
}
