package store

import (
	"context"
	"fmt"
)

const documentColumns = `d.id, d.user_id::text, d.filename, d.title, d.content, d.body_text, d.size, d.created_at, d.updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.UserID, &d.Filename, &d.Title, &d.Content, &d.BodyText, &d.Size, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// UpsertDocument inserts or replaces the document identified by
// (UserID, Filename) and returns the stored row.
func (s *PostgresStore) UpsertDocument(ctx context.Context, doc Document) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents AS d (user_id, filename, title, content, body_text, size)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, filename) DO UPDATE
		SET title=EXCLUDED.title, content=EXCLUDED.content, body_text=EXCLUDED.body_text,
			size=EXCLUDED.size, updated_at=NOW()
		RETURNING `+documentColumns,
		doc.UserID, doc.Filename, doc.Title, doc.Content, doc.BodyText, len(doc.Content))
	saved, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("upsert document: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, userID, filename string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.user_id::text=$1 AND d.filename=$2`,
		userID, filename))
	if err != nil {
		return Document{}, notFound(err)
	}
	return doc, nil
}

// ListDocuments returns the user's documents, most recently updated first.
// Content is left empty.
func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.user_id::text, d.filename, d.title, '', '', d.size, d.created_at, d.updated_at
		FROM documents d
		WHERE d.user_id::text=$1
		ORDER BY d.updated_at DESC, d.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes the document and, through the foreign key, its
// snapshots. It returns the deleted row id.
func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, filename string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM documents WHERE user_id::text=$1 AND filename=$2 RETURNING id`,
		userID, filename).Scan(&id)
	if err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

// LoadAllDocuments is used for full search reindexing.
func (s *PostgresStore) LoadAllDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents d ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
