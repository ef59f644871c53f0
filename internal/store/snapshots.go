package store

import (
	"context"
	"fmt"
	"time"
)

// MaxSnapshotsPerDocument bounds how many snapshots are retained per document.
const MaxSnapshotsPerDocument = 10

// SnapshotName formats the snapshot name for a document saved at t.
func SnapshotName(filename string, t time.Time) string {
	return t.UTC().Format("20060102_150405") + "_" + filename
}

// CreateSnapshot copies the document's current content into a new snapshot
// and prunes older snapshots beyond MaxSnapshotsPerDocument in the same
// transaction.
func (s *PostgresStore) CreateSnapshot(ctx context.Context, userID, filename string, now time.Time) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	var (
		docID   int64
		content string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, content FROM documents WHERE user_id::text=$1 AND filename=$2 FOR UPDATE`,
		userID, filename).Scan(&docID, &content)
	if err != nil {
		return Snapshot{}, notFound(err)
	}

	snap := Snapshot{DocumentID: docID, Filename: filename, Name: SnapshotName(filename, now), Content: content, Size: len(content)}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_snapshots (document_id, name, content, size, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, name) DO UPDATE SET content=EXCLUDED.content, size=EXCLUDED.size
		RETURNING id, created_at
	`, docID, snap.Name, content, snap.Size, now).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM document_snapshots
		WHERE document_id=$1 AND id NOT IN (
			SELECT id FROM document_snapshots WHERE document_id=$1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)
	`, docID, MaxSnapshotsPerDocument)
	if err != nil {
		return Snapshot{}, fmt.Errorf("prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshot metadata for a document, newest first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, userID, filename string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.id, ds.document_id, d.filename, ds.name, ds.size, ds.created_at
		FROM document_snapshots ds
		JOIN documents d ON d.id = ds.document_id
		WHERE d.user_id::text=$1 AND d.filename=$2
		ORDER BY ds.created_at DESC, ds.id DESC
	`, userID, filename)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.DocumentID, &snap.Filename, &snap.Name, &snap.Size, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// GetSnapshot loads a snapshot by name, only if its document belongs to userID.
func (s *PostgresStore) GetSnapshot(ctx context.Context, userID, name string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT ds.id, ds.document_id, d.filename, ds.name, ds.content, ds.size, ds.created_at
		FROM document_snapshots ds
		JOIN documents d ON d.id = ds.document_id
		WHERE d.user_id::text=$1 AND ds.name=$2
		ORDER BY ds.created_at DESC
		LIMIT 1
	`, userID, name).Scan(&snap.ID, &snap.DocumentID, &snap.Filename, &snap.Name, &snap.Content, &snap.Size, &snap.CreatedAt)
	if err != nil {
		return Snapshot{}, notFound(err)
	}
	return snap, nil
}
