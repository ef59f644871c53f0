package export

import (
	"context"
	"fmt"
	"path"
	"strings"

	"inkwell/api/internal/document"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service renders documents and optionally publishes them.
type Service struct {
	pdf    renderFunc
	docx   renderFunc
	bucket *Bucket
}

// NewService returns an exporter. bucket may be nil.
func NewService(bucket *Bucket) *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX, bucket: bucket}
}

// StorageEnabled reports whether exports can be published.
func (s *Service) StorageEnabled() bool {
	return s.bucket != nil
}

// Export renders doc in req.Format.
func (s *Service) Export(ctx context.Context, doc document.Content, req Request) (*Result, error) {
	data := TemplateData{
		Title:     doc.Title,
		Author:    req.Author,
		UpdatedAt: req.UpdatedAt,
		Sections:  make([]TemplateSection, 0, len(doc.Sections)),
	}
	for _, sec := range doc.Sections {
		ts := TemplateSection{Paragraphs: splitLines(sec.Text)}
		if req.IncludeSuggestions {
			ts.Suggestion = sec.Generated
		}
		data.Sections = append(data.Sections, ts)
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	title := doc.Title
	if title == "" {
		title = strings.TrimSuffix(req.Filename, path.Ext(req.Filename))
	}

	switch req.Format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: sanitizeFilename(title) + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF, "":
		return s.pdf(ctx, html, title)
	case FormatDOCX:
		return s.docx(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
}

// Publish uploads res under a per-user key and returns a presigned download URL.
func (s *Service) Publish(ctx context.Context, userID string, res *Result) (string, error) {
	if s.bucket == nil {
		return "", ErrStorageDisabled
	}
	return s.bucket.Upload(ctx, path.Join(userID, res.Filename), res)
}
