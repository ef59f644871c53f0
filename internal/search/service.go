package search

import (
	"context"
	"log/slog"
	"strconv"

	"inkwell/api/internal/store"
)

// Service tries Meilisearch first and falls back to PostgreSQL FTS.
type Service struct {
	meili  Indexer
	pgfts  Searcher
	loader func(ctx context.Context) ([]DocumentRecord, error)
	logger *slog.Logger
}

// Indexer is the Meilisearch side of the service.
type Indexer interface {
	Searcher
	IndexDocuments(documents []DocumentRecord) error
	DeleteDocument(id string) error
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	s := &Service{logger: logger}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
		s.loader = pgfts.LoadAllRecords
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search returns the caller's matching documents. Failures yield an empty
// response rather than an error.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "err", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: "none"}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search", "err", err)
		return Response{Results: []Result{}, Query: q.Text, Engine: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}
}

// IndexDocument pushes doc to Meilisearch in the background.
func (s *Service) IndexDocument(doc store.Document) {
	if !s.meiliReady() {
		return
	}
	record := RecordFromDocument(doc)
	go func() {
		if err := s.meili.IndexDocuments([]DocumentRecord{record}); err != nil {
			s.logger.Warn("index document", "id", record.ID, "err", err)
		}
	}()
}

// DeleteDocument removes the document with row id from the index in the
// background.
func (s *Service) DeleteDocument(id int64) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(strconv.FormatInt(id, 10)); err != nil {
			s.logger.Warn("delete document from index", "id", id, "err", err)
		}
	}()
}

// ReindexAll loads every document from Postgres and pushes it to
// Meilisearch. It returns the number of documents sent.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.meiliReady() || s.loader == nil {
		return 0, nil
	}
	records, err := s.loader(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexDocuments(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
