// Package search indexes saved documents in Meilisearch with a PostgreSQL
// full-text fallback.
package search

import (
	"context"
	"strconv"
	"time"

	"inkwell/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"modified"`
}

// Query describes a search request. UserID is mandatory; results never
// cross users.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data indexed for a document.
type DocumentRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Filename  string `json:"filename"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt int64  `json:"updatedAt"`
}

// RecordFromDocument converts a stored document to its index form.
func RecordFromDocument(doc store.Document) DocumentRecord {
	return DocumentRecord{
		ID:        strconv.FormatInt(doc.ID, 10),
		UserID:    doc.UserID,
		Filename:  doc.Filename,
		Title:     doc.Title,
		Body:      doc.BodyText,
		UpdatedAt: doc.UpdatedAt.Unix(),
	}
}
