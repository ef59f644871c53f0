package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"inkwell/api/internal/document"
	"inkwell/api/internal/export"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const defaultHistoryLimit = 50

// SaveDocument validates raw as document JSON and upserts it under filename.
// Each save is committed to the document history and pushed to search.
func (s *Service) SaveDocument(ctx context.Context, session Session, filename string, raw []byte) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionWrite) {
		return nil, errForbidden
	}
	name, err := util.CleanFilename(filename)
	if err != nil {
		return nil, err
	}
	content, err := document.Parse(raw)
	if err != nil {
		return nil, err
	}

	created := false
	if _, err := s.store.GetDocument(ctx, session.UserID, name); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		created = true
	}

	saved, err := s.store.UpsertDocument(ctx, store.Document{
		UserID:   session.UserID,
		Filename: name,
		Title:    content.Title,
		Content:  string(raw),
		BodyText: content.BodyText(),
	})
	if err != nil {
		return nil, err
	}

	var commitHash string
	if s.history != nil {
		commit, err := s.history.Commit(session.UserID, name, raw, authorName(session), "")
		if err != nil {
			s.logger.Warn("commit document history", "filename", name, "err", err)
		} else {
			commitHash = commit.Hash
		}
	}
	s.search.IndexDocument(saved)

	message := "Document updated"
	if created {
		message = "Document created"
	}
	payload := map[string]any{
		"status":   "success",
		"filename": name,
		"message":  message,
		"size":     saved.Size,
		"modified": saved.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if commitHash != "" {
		payload["commit"] = commitHash
	}
	return payload, nil
}

func authorName(session Session) string {
	if session.UserName != "" {
		return session.UserName
	}
	if session.Email != "" {
		return session.Email
	}
	return session.UserID
}

func (s *Service) ListDocuments(ctx context.Context, session Session) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionRead) {
		return nil, errForbidden
	}
	docs, err := s.store.ListDocuments(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		items = append(items, map[string]any{
			"filename": d.Filename,
			"title":    d.Title,
			"size":     d.Size,
			"modified": d.UpdatedAt.UTC().Format(time.RFC3339),
			"created":  d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

// Document returns the stored row for the caller's filename.
func (s *Service) Document(ctx context.Context, session Session, filename string) (store.Document, error) {
	if !s.Can(session.Role, rbac.ActionRead) {
		return store.Document{}, errForbidden
	}
	name, err := util.CleanFilename(filename)
	if err != nil {
		return store.Document{}, err
	}
	return s.store.GetDocument(ctx, session.UserID, name)
}

// LoadDocument returns the parsed content of the caller's document.
func (s *Service) LoadDocument(ctx context.Context, session Session, filename string) (json.RawMessage, error) {
	doc, err := s.Document(ctx, session, filename)
	if err != nil {
		return nil, err
	}
	if _, err := document.Parse([]byte(doc.Content)); err != nil {
		s.logger.Error("stored document is not valid", "filename", doc.Filename, "err", err)
		return nil, domainError(http.StatusInternalServerError, "INVALID_DOCUMENT", "Document contains invalid data", nil)
	}
	return json.RawMessage(doc.Content), nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, filename string) error {
	if !s.Can(session.Role, rbac.ActionWrite) {
		return errForbidden
	}
	name, err := util.CleanFilename(filename)
	if err != nil {
		return err
	}
	id, err := s.store.DeleteDocument(ctx, session.UserID, name)
	if err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.Remove(session.UserID, name); err != nil {
			s.logger.Warn("remove document history", "filename", name, "err", err)
		}
	}
	s.search.DeleteDocument(id)
	return nil
}

func (s *Service) History(ctx context.Context, session Session, filename string, limit int) ([]map[string]any, error) {
	doc, err := s.Document(ctx, session, filename)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []map[string]any{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	commits, err := s.history.History(session.UserID, doc.Filename, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		items = append(items, map[string]any{
			"hash":      c.Hash,
			"message":   c.Message,
			"author":    c.Author,
			"createdAt": c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

// Version returns the document content recorded at commit hash.
func (s *Service) Version(ctx context.Context, session Session, filename, hash string) (json.RawMessage, error) {
	doc, err := s.Document(ctx, session, filename)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, store.ErrNotFound
	}
	content, err := s.history.ContentAt(session.UserID, doc.Filename, hash)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(content), nil
}

// ExportResult is a rendered document, plus a download URL when it was
// published to object storage.
type ExportResult struct {
	*export.Result
	URL string
}

func (s *Service) ExportDocument(ctx context.Context, session Session, filename string, format export.Format, includeSuggestions, publish bool) (ExportResult, error) {
	doc, err := s.Document(ctx, session, filename)
	if err != nil {
		return ExportResult{}, err
	}
	content, err := document.Parse([]byte(doc.Content))
	if err != nil {
		return ExportResult{}, err
	}
	res, err := s.export.Export(ctx, content, export.Request{
		Filename:           doc.Filename,
		Format:             format,
		Author:             authorName(session),
		UpdatedAt:          doc.UpdatedAt,
		IncludeSuggestions: includeSuggestions,
	})
	if err != nil {
		return ExportResult{}, err
	}
	out := ExportResult{Result: res}
	if publish {
		link, err := s.export.Publish(ctx, session.UserID, res)
		if err != nil {
			return ExportResult{}, err
		}
		out.URL = link
	}
	return out, nil
}

func (s *Service) CreateSnapshot(ctx context.Context, session Session, filename string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionWrite) {
		return nil, errForbidden
	}
	name, err := util.CleanFilename(filename)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.CreateSnapshot(ctx, session.UserID, name, s.now())
	if err != nil {
		return nil, err
	}
	return snapshotSummary(snap), nil
}

func (s *Service) ListSnapshots(ctx context.Context, session Session, filename string) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionRead) {
		return nil, errForbidden
	}
	name, err := util.CleanFilename(filename)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.ListSnapshots(ctx, session.UserID, name)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, snapshotSummary(snap))
	}
	return items, nil
}

func (s *Service) LoadSnapshot(ctx context.Context, session Session, name string) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionRead) {
		return nil, errForbidden
	}
	snap, err := s.store.GetSnapshot(ctx, session.UserID, name)
	if err != nil {
		return nil, err
	}
	payload := snapshotSummary(snap)
	payload["document"] = json.RawMessage(snap.Content)
	return payload, nil
}

func snapshotSummary(snap store.Snapshot) map[string]any {
	return map[string]any{
		"name":     snap.Name,
		"filename": snap.Filename,
		"size":     snap.Size,
		"created":  snap.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Service) Search(ctx context.Context, session Session, text string, limit, offset int) (search.Response, error) {
	if !s.Can(session.Role, rbac.ActionRead) {
		return search.Response{}, errForbidden
	}
	if text == "" {
		return search.Response{Results: []search.Result{}, Engine: "none"}, nil
	}
	if limit < 0 || offset < 0 {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("invalid paging limit=%d offset=%d", limit, offset), nil)
	}
	return s.search.Search(ctx, search.Query{
		Text:   text,
		UserID: session.UserID,
		Limit:  limit,
		Offset: offset,
	}), nil
}
