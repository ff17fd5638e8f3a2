package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/database"
)

const selectDocument = `
	SELECT id, title, path, content_type, size, metadata, user_id, created_at, updated_at
	FROM documents
`

// Store persists document rows. Every read and write is scoped to an owner.
type Store struct {
	db *sql.DB
}

// NewStore creates a new document store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts doc and fills in its ID and timestamps
func (s *Store) Create(ctx context.Context, doc *Document) error {
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO documents (title, path, content_type, size, metadata, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, doc.Title, doc.Path, doc.ContentType, doc.Size, metadata, doc.UserID, now, now).Scan(&doc.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.Validation("unknown owner")
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// Get retrieves a document owned by ownerID.
// A document owned by someone else is reported as not found.
func (s *Store) Get(ctx context.Context, id, ownerID int64) (*Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx,
		selectDocument+" WHERE id = $1 AND user_id = $2", id, ownerID))
}

// List returns the documents owned by ownerID, newest first
func (s *Store) List(ctx context.Context, ownerID int64) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		selectDocument+" WHERE user_id = $1 ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Update writes the title and metadata of doc, scoped to its owner
func (s *Store) Update(ctx context.Context, doc *Document) error {
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	doc.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title = $1, metadata = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5
	`, doc.Title, metadata, doc.UpdatedAt, doc.ID, doc.UserID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a document row owned by ownerID
func (s *Store) Delete(ctx context.Context, id, ownerID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("document")
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc      Document
		metadata []byte
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Path, &doc.ContentType, &doc.Size,
		&metadata, &doc.UserID, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("document")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Metadata = map[string]interface{}{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode document metadata: %w", err)
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]interface{}{}
		}
	}
	return &doc, nil
}

func encodeMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", apperrors.Validation("metadata is not serializable: %v", err)
	}
	return string(data), nil
}
