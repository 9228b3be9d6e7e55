package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mediastore/internal/blobstore"
	"mediastore/internal/models"
	"mediastore/internal/store"
)

// DocumentInput describes a new document.
type DocumentInput struct {
	ID           string
	Name         string
	Description  string
	PrivacyState models.PrivacyState
	Creator      string
	Extension    string
	Content      io.Reader
}

// DocumentUpdate lists the document fields to change. Nil fields are left
// alone; a nil Content keeps the current payload.
type DocumentUpdate struct {
	Name         *string
	Description  *string
	PrivacyState *models.PrivacyState
	Extension    *string
	Content      io.Reader
}

// ContentUpdate replaces a blob's payload.
type ContentUpdate struct {
	Extension *string
	Content   io.Reader
	Variants  []blobstore.Variant
}

// CreateDocument inserts the document row, writes its payload and inserts
// the blob row, all in one transaction. An id that already exists yields
// an error matching store.ErrDuplicate and writes nothing.
func (s *Service) CreateDocument(ctx context.Context, in DocumentInput) (doc *models.Document, err error) {
	id, err := models.NormalizeID(in.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("document name is required")
	}
	if strings.TrimSpace(in.Creator) == "" {
		return nil, fmt.Errorf("document creator is required")
	}
	if in.Content == nil {
		return nil, fmt.Errorf("document content is required")
	}
	privacy, err := models.ParsePrivacyState(string(in.PrivacyState))
	if err != nil {
		return nil, err
	}
	tree, err := s.tree(models.KindDocument)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	undo := &fileSet{}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			s.remove(ctx, phaseUndo, undo)
		}
	}()

	now := s.now()
	doc = &models.Document{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		PrivacyState: privacy,
		Creator:      in.Creator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = tx.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	res, err := tree.Put(ctx, blobstore.PutRequest{ID: id, Content: in.Content})
	undo.add(tree, res.Files...)
	if err != nil {
		return nil, fmt.Errorf("write document %s: %w", id, err)
	}

	blob := &models.Blob{
		ID:        id,
		Kind:      models.KindDocument,
		OwnerRef:  "document:" + id,
		Location:  res.Location,
		SizeBytes: res.SizeBytes,
		Extension: in.Extension,
		SHA256:    res.SHA256,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = tx.InsertBlob(ctx, blob); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	doc.Blob = blob
	s.logger.Info("document created", "id", id, "location", blob.Location, "size_bytes", blob.SizeBytes)
	return doc, nil
}

// ReplaceDocument applies upd to a document. New content is written to a
// fresh directory and the blob row is repointed; the old files are removed
// only after the transaction commits.
func (s *Service) ReplaceDocument(ctx context.Context, id string, upd DocumentUpdate) (*models.Document, error) {
	id, err := models.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	var doc *models.Document
	var blob *models.Blob
	err = s.replace(ctx, id, func(ctx context.Context, tx store.MetaTx, r *replacement) error {
		doc, err = tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		if upd.Content != nil {
			blob, err = r.content(ctx, tx, ContentUpdate{Extension: upd.Extension, Content: upd.Content})
			if err != nil {
				return err
			}
		}
		changed := upd.Content != nil
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("document name is required")
			}
			doc.Name = name
			changed = true
		}
		if upd.Description != nil {
			doc.Description = *upd.Description
			changed = true
		}
		if upd.PrivacyState != nil {
			privacy, err := models.ParsePrivacyState(string(*upd.PrivacyState))
			if err != nil {
				return err
			}
			doc.PrivacyState = privacy
			changed = true
		}
		if !changed {
			return nil
		}
		doc.UpdatedAt = s.now()
		return tx.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	if blob == nil {
		if blob, err = s.store.GetBlob(ctx, id); err != nil {
			return nil, err
		}
	}
	doc.Blob = blob
	return doc, nil
}

// ReplaceBlob swaps the payload of any blob, keeping its id.
func (s *Service) ReplaceBlob(ctx context.Context, id string, upd ContentUpdate) (*models.Blob, error) {
	id, err := models.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	if upd.Content == nil {
		return nil, fmt.Errorf("content is required")
	}
	var blob *models.Blob
	err = s.replace(ctx, id, func(ctx context.Context, tx store.MetaTx, r *replacement) error {
		blob, err = r.content(ctx, tx, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// replacement carries the undo log and deferred deletes of one replace.
type replacement struct {
	s          *Service
	id         string
	undo       *fileSet
	superseded *fileSet
}

// content writes new payload for r.id and repoints its row. The old files
// move to the superseded set.
func (r *replacement) content(ctx context.Context, tx store.MetaTx, upd ContentUpdate) (*models.Blob, error) {
	old, err := tx.GetBlob(ctx, r.id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("blob %s: %w", r.id, ErrNotFound)
	}
	for _, v := range upd.Variants {
		if !models.IsValidVariant(v.Suffix) {
			return nil, fmt.Errorf("%w %q", ErrUnknownVariant, v.Suffix)
		}
	}
	tree, err := r.s.tree(old.Kind)
	if err != nil {
		return nil, err
	}

	res, err := tree.PutReplacing(ctx, blobstore.PutRequest{ID: r.id, Content: upd.Content, Variants: upd.Variants}, old.Location)
	r.undo.add(tree, res.Files...)
	if err != nil {
		return nil, fmt.Errorf("write blob %s: %w", r.id, err)
	}

	next := *old
	next.Location = res.Location
	next.SizeBytes = res.SizeBytes
	next.SHA256 = res.SHA256
	next.Variants = res.Variants
	next.UpdatedAt = r.s.now()
	if upd.Extension != nil {
		next.Extension = *upd.Extension
	}
	if err := tx.UpdateBlobContent(ctx, &next); err != nil {
		return nil, err
	}
	r.superseded.add(tree, old.Files()...)
	return &next, nil
}

// replace runs fn in a transaction. On failure the new files are removed
// and the old row and files stay as they were. On commit the superseded
// files are removed best-effort.
func (s *Service) replace(ctx context.Context, id string, fn func(context.Context, store.MetaTx, *replacement) error) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	r := &replacement{s: s, id: id, undo: &fileSet{}, superseded: &fileSet{}}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			s.remove(ctx, phaseUndo, r.undo)
		}
	}()

	if err = fn(ctx, tx, r); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if failed := s.remove(ctx, phaseSuperseded, r.superseded); failed > 0 {
		s.logger.Warn("superseded files left behind", "id", id, "count", failed)
	}
	s.logger.Info("blob replaced", "id", id)
	return nil
}

// DeleteDocument removes the document and blob rows, then its files
// best-effort.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	id, err := models.NormalizeID(id)
	if err != nil {
		return err
	}
	return s.deleteRows(ctx, id, func(ctx context.Context, tx store.MetaTx, files *fileSet) error {
		blob, err := tx.GetBlob(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteDocument(ctx, id); err != nil {
			return err
		}
		if blob == nil {
			return nil
		}
		if err := tx.DeleteBlob(ctx, id); err != nil {
			return err
		}
		return s.schedule(files, blob)
	})
}

// DeleteSurveyResponse removes a response with its prompt and media rows,
// then the media files best-effort.
func (s *Service) DeleteSurveyResponse(ctx context.Context, id string) error {
	id, err := models.NormalizeID(id)
	if err != nil {
		return err
	}
	return s.deleteRows(ctx, id, func(ctx context.Context, tx store.MetaTx, files *fileSet) error {
		blobs, err := tx.ListSurveyResponseBlobs(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteSurveyResponse(ctx, id); err != nil {
			return err
		}
		for i := range blobs {
			if err := s.schedule(files, &blobs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) schedule(files *fileSet, blob *models.Blob) error {
	tree, err := s.tree(blob.Kind)
	if err != nil {
		return err
	}
	files.add(tree, blob.Files()...)
	return nil
}

func (s *Service) deleteRows(ctx context.Context, id string, fn func(context.Context, store.MetaTx, *fileSet) error) (err error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	files := &fileSet{}
	if err = fn(ctx, tx, files); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", id, ErrNotFound)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if failed := s.remove(ctx, phaseDeleted, files); failed > 0 {
		s.logger.Warn("deleted entity left files behind", "id", id, "count", failed)
	}
	s.logger.Info("entity deleted", "id", id)
	return nil
}
