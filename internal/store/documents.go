package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"mediastore/internal/models"
)

var documentColumns = []string{"id", "name", "description", "privacy_state", "creator", "created_at", "updated_at"}

// InsertDocument inserts one document row. A conflicting id yields
// *DuplicateError.
func (t *Tx) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.PrivacyState == "" {
		doc.PrivacyState = models.PrivacyPrivate
	}
	_, err := execBuilt(ctx, t.tx, t.b.Insert("documents").Columns(documentColumns...).Values(
		doc.ID,
		doc.Name,
		nullIfEmpty(doc.Description),
		string(doc.PrivacyState),
		doc.Creator,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
	))
	return classifyInsert("documents", doc.ID, err)
}

func (t *Tx) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return getDocument(ctx, t.tx, t.b, id)
}

// UpdateDocument rewrites the mutable document fields.
func (t *Tx) UpdateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	res, err := execBuilt(ctx, t.tx, t.b.Update("documents").
		Set("name", doc.Name).
		Set("description", nullIfEmpty(doc.Description)).
		Set("privacy_state", string(doc.PrivacyState)).
		Set("updated_at", formatTime(doc.UpdatedAt)).
		Where(sq.Eq{"id": doc.ID}))
	if err != nil {
		return err
	}
	return requireAffected(res, "document", doc.ID)
}

func (t *Tx) DeleteDocument(ctx context.Context, id string) error {
	res, err := execBuilt(ctx, t.tx, t.b.Delete("documents").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return requireAffected(res, "document", id)
}

// GetDocument returns a document with its blob, or nil when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := getDocument(ctx, s.db, s.builder, id)
	if err != nil || doc == nil {
		return doc, err
	}
	doc.Blob, err = getBlob(ctx, s.db, s.builder, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func getDocument(ctx context.Context, q querier, b sq.StatementBuilderType, id string) (*models.Document, error) {
	row, err := queryRowBuilt(ctx, q, b.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return scanDocument(row)
}

func scanDocument(scanner interface {
	Scan(dest ...any) error
}) (*models.Document, error) {
	doc := models.Document{}
	var description sql.NullString
	var privacy, createdAt, updatedAt string

	err := scanner.Scan(&doc.ID, &doc.Name, &description, &privacy, &doc.Creator, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	doc.Description = description.String
	doc.PrivacyState = models.PrivacyState(privacy)
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}
