package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"mediastore/internal/models"
)

var blobColumns = []string{"id", "kind", "owner_ref", "location", "size_bytes", "extension", "sha256", "variants", "created_at", "updated_at"}

// InsertBlob inserts one blob row. A conflicting id yields *DuplicateError.
func (t *Tx) InsertBlob(ctx context.Context, blob *models.Blob) error {
	return insertBlob(ctx, t.tx, t.b, blob)
}

func (t *Tx) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	return getBlob(ctx, t.tx, t.b, id)
}

// UpdateBlobContent repoints an existing row at new content.
func (t *Tx) UpdateBlobContent(ctx context.Context, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	if blob.UpdatedAt.IsZero() {
		blob.UpdatedAt = time.Now().UTC()
	}
	res, err := execBuilt(ctx, t.tx, t.b.Update("blobs").
		Set("location", blob.Location).
		Set("size_bytes", blob.SizeBytes).
		Set("extension", nullIfEmpty(blob.Extension)).
		Set("sha256", blob.SHA256).
		Set("variants", nullIfEmpty(strings.Join(blob.Variants, ","))).
		Set("updated_at", formatTime(blob.UpdatedAt)).
		Where(sq.Eq{"id": blob.ID}))
	if err != nil {
		return err
	}
	return requireAffected(res, "blob", blob.ID)
}

func (t *Tx) DeleteBlob(ctx context.Context, id string) error {
	res, err := execBuilt(ctx, t.tx, t.b.Delete("blobs").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return requireAffected(res, "blob", id)
}

// GetBlob returns one blob row, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	return getBlob(ctx, s.db, s.builder, id)
}

// ListBlobs streams every blob row of kind ordered by id. An empty kind
// lists all kinds.
func (s *Store) ListBlobs(ctx context.Context, kind models.MediaKind, fn func(models.Blob) error) error {
	stmt := s.builder.Select(blobColumns...).From("blobs").OrderBy("id")
	if kind != "" {
		stmt = stmt.Where(sq.Eq{"kind": string(kind)})
	}
	rows, err := queryBuilt(ctx, s.db, stmt)
	if err != nil {
		return err
	}
	var blobs []models.Blob
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			rows.Close()
			return err
		}
		blobs = append(blobs, *blob)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	// Release the connection before invoking callbacks that may query again.
	rows.Close()
	for _, blob := range blobs {
		if err := fn(blob); err != nil {
			return err
		}
	}
	return nil
}

// BlobIDsAtLocations maps each given location that a row points at to that
// row's id.
func (s *Store) BlobIDsAtLocations(ctx context.Context, locations []string) (map[string]string, error) {
	out := make(map[string]string, len(locations))
	if len(locations) == 0 {
		return out, nil
	}
	const chunk = 500
	for start := 0; start < len(locations); start += chunk {
		end := min(start+chunk, len(locations))
		rows, err := queryBuilt(ctx, s.db, s.builder.Select("id", "location").From("blobs").
			Where(sq.Eq{"location": locations[start:end]}))
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id, location string
			if err := rows.Scan(&id, &location); err != nil {
				rows.Close()
				return nil, err
			}
			out[location] = id
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func insertBlob(ctx context.Context, q querier, b sq.StatementBuilderType, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	if blob.ID == "" || blob.Location == "" {
		return fmt.Errorf("blob id and location are required")
	}
	now := time.Now().UTC()
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = now
	}
	if blob.UpdatedAt.IsZero() {
		blob.UpdatedAt = blob.CreatedAt
	}
	_, err := execBuilt(ctx, q, b.Insert("blobs").Columns(blobColumns...).Values(
		blob.ID,
		string(blob.Kind),
		nullIfEmpty(blob.OwnerRef),
		blob.Location,
		blob.SizeBytes,
		nullIfEmpty(blob.Extension),
		blob.SHA256,
		nullIfEmpty(strings.Join(blob.Variants, ",")),
		formatTime(blob.CreatedAt),
		formatTime(blob.UpdatedAt),
	))
	return classifyInsert("blobs", blob.ID, err)
}

func getBlob(ctx context.Context, q querier, b sq.StatementBuilderType, id string) (*models.Blob, error) {
	row, err := queryRowBuilt(ctx, q, b.Select(blobColumns...).From("blobs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return scanBlob(row)
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var kind string
	var ownerRef, extension, variants sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&blob.ID,
		&kind,
		&ownerRef,
		&blob.Location,
		&blob.SizeBytes,
		&extension,
		&blob.SHA256,
		&variants,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	blob.Kind = models.MediaKind(kind)
	blob.OwnerRef = ownerRef.String
	blob.Extension = extension.String
	if variants.String != "" {
		blob.Variants = strings.Split(variants.String, ",")
	}

	if blob.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if blob.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &blob, nil
}
