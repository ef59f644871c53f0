package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"inkwell/api/internal/store"
)

// PgFTS implements Searcher using PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgftsWhere = `d.user_id::text = $2 AND d.fts @@ plainto_tsquery('english', $1)`

// Search ranks the caller's documents with ts_rank and highlights body
// fragments with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM documents d WHERE `+pgftsWhere, q.Text, q.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT d.filename, d.title,
			ts_headline('english', d.body_text, plainto_tsquery('english', $1),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet,
			d.updated_at
		FROM documents d
		WHERE `+pgftsWhere+`
		ORDER BY ts_rank(d.fts, plainto_tsquery('english', $1)) DESC, d.updated_at DESC
		LIMIT $3 OFFSET $4`, q.Text, q.UserID, q.limit(), offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Filename, &r.Title, &r.Snippet, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every document in index form for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	docs, err := store.NewPostgresStore(p.db).LoadAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, RecordFromDocument(doc))
	}
	return records, nil
}
