package store

import (
	"context"

	"mediastore/internal/models"
)

// MetaTx is one open metadata transaction. Inserts on caller-assigned ids
// report conflicts as *DuplicateError.
type MetaTx interface {
	InsertBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	UpdateBlobContent(ctx context.Context, blob *models.Blob) error
	DeleteBlob(ctx context.Context, id string) error

	InsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error

	InsertSurveyResponse(ctx context.Context, sr *models.SurveyResponse) error
	InsertPromptResponse(ctx context.Context, pr *models.PromptResponse) error
	ListSurveyResponseBlobs(ctx context.Context, surveyResponseID string) ([]models.Blob, error)
	DeleteSurveyResponse(ctx context.Context, id string) error

	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	Commit() error
	Rollback() error
}

// MetaStore is the metadata backend used by the media service.
type MetaStore interface {
	Begin(ctx context.Context) (MetaTx, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetSurveyResponse(ctx context.Context, id string) (*models.SurveyResponse, error)
	ListBlobs(ctx context.Context, kind models.MediaKind, fn func(models.Blob) error) error
	BlobIDsAtLocations(ctx context.Context, locations []string) (map[string]string, error)
}

var (
	_ MetaStore = (*Store)(nil)
	_ MetaTx    = (*Tx)(nil)
)
