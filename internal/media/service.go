// Package media coordinates blob files with their metadata rows. Files are
// written before the rows that reference them are committed; every path
// that fails removes the files it wrote, and files superseded by a commit
// are removed only after that commit succeeds.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mediastore/internal/blobstore"
	"mediastore/internal/metrics"
	"mediastore/internal/models"
	"mediastore/internal/store"
)

var (
	// ErrNotFound is returned when the addressed entity has no row.
	ErrNotFound = store.ErrNotFound
	// ErrUnknownKind is returned when no tree is configured for a kind.
	ErrUnknownKind = errors.New("no blob tree configured for kind")
	// ErrUnknownVariant is returned when a blob has no such variant.
	ErrUnknownVariant = errors.New("unknown variant")
)

// Options configures a Service.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Service owns the write, replace and delete protocols for every media
// kind.
type Service struct {
	store   store.MetaStore
	trees   map[models.MediaKind]blobstore.BlobStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService wires a metadata store to one blob tree per kind.
func NewService(st store.MetaStore, trees map[models.MediaKind]blobstore.BlobStore, opts Options) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("at least one blob tree is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   st,
		trees:   trees,
		logger:  logger.With("component", "media"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

func (s *Service) tree(kind models.MediaKind) (blobstore.BlobStore, error) {
	tree, ok := s.trees[kind]
	if !ok || tree == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return tree, nil
}

// Open returns a reader for a blob's primary file, or for the variant named
// by suffix.
func (s *Service) Open(ctx context.Context, id, suffix string) (io.ReadCloser, *models.Blob, error) {
	id, err := models.NormalizeID(id)
	if err != nil {
		return nil, nil, err
	}
	blob, err := s.store.GetBlob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if blob == nil {
		return nil, nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	location := blob.Location
	if suffix != "" {
		found := false
		for _, v := range blob.Variants {
			if v == suffix {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("%w %q for blob %s", ErrUnknownVariant, suffix, id)
		}
		location += suffix
	}
	tree, err := s.tree(blob.Kind)
	if err != nil {
		return nil, nil, err
	}
	rc, err := tree.Open(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	return rc, blob, nil
}

// GetDocument returns a document with its blob.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	id, err := models.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// GetSurveyResponse returns a survey response with its prompts.
func (s *Service) GetSurveyResponse(ctx context.Context, id string) (*models.SurveyResponse, error) {
	id, err := models.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	sr, err := s.store.GetSurveyResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, fmt.Errorf("survey response %s: %w", id, ErrNotFound)
	}
	return sr, nil
}

// OpenDocument opens the payload of a document. Blobs that belong to a
// survey response are not documents and yield ErrNotFound.
func (s *Service) OpenDocument(ctx context.Context, id string) (io.ReadCloser, *models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.Blob == nil {
		return nil, nil, fmt.Errorf("document %s has no payload: %w", doc.ID, ErrNotFound)
	}
	rc, _, err := s.Open(ctx, doc.ID, "")
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}
