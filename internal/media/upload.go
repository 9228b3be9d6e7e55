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

// OutcomeKind classifies how one batch item was applied.
type OutcomeKind int

const (
	OutcomeInserted OutcomeKind = iota
	OutcomeDuplicate
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// MarshalText renders the outcome name in JSON output.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome reports the result for one batch item.
type Outcome struct {
	Index int         `json:"index"`
	ID    string      `json:"id"`
	Kind  OutcomeKind `json:"outcome"`
	// ExistingID names the row that conflicted for duplicates.
	ExistingID string   `json:"existing_id,omitempty"`
	Files      []string `json:"files,omitempty"`
	Err        error    `json:"-"`
}

// BatchResult lists per-item outcomes in input order. Duplicates holds the
// indexes of items skipped as already stored.
type BatchResult struct {
	Outcomes   []Outcome `json:"outcomes"`
	Duplicates []int     `json:"duplicates"`
}

// BatchError is returned when a batch aborts. Nothing from the batch was
// committed and every file it wrote was scheduled for removal.
type BatchError struct {
	Index int
	ID    string
	Err   error
}

func (e *BatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("upload batch: %v", e.Err)
	}
	return fmt.Sprintf("upload batch item %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// MediaUpload is the payload of a media prompt. ID is the caller-assigned
// blob UUID.
type MediaUpload struct {
	ID        string
	Kind      models.MediaKind
	Extension string
	Content   io.Reader
	Variants  []blobstore.Variant
}

// PromptUpload is one prompt response, optionally carrying media.
type PromptUpload struct {
	models.PromptResponse
	Media *MediaUpload
}

// SurveyUpload is one item of an upload batch.
type SurveyUpload struct {
	Response models.SurveyResponse
	Prompts  []PromptUpload
}

// errItemDuplicate marks a conflict that skips the item instead of failing
// the batch.
type errItemDuplicate struct {
	existing string
	err      error
}

func (e *errItemDuplicate) Error() string { return e.err.Error() }
func (e *errItemDuplicate) Unwrap() error { return e.err }

// UploadSurveys stores a batch of survey responses in one transaction.
// Items whose UUID is already stored are reported as duplicates and
// skipped; any other failure aborts the whole batch, removes every file the
// batch wrote and returns a *BatchError.
func (s *Service) UploadSurveys(ctx context.Context, batch []SurveyUpload) (BatchResult, error) {
	result := BatchResult{Outcomes: make([]Outcome, 0, len(batch)), Duplicates: []int{}}
	if len(batch) == 0 {
		return result, nil
	}
	if err := validateBatch(batch); err != nil {
		return result, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return result, &BatchError{Index: -1, Err: err}
	}

	undo := &fileSet{}
	fail := func(index int, id string, cause error) (BatchResult, error) {
		_ = tx.Rollback()
		failed := s.remove(ctx, phaseUndo, undo)
		s.metrics.BatchRolledBack()
		s.logger.Error("upload batch aborted", "index", index, "id", id, "error", cause, "cleanup_failures", failed)
		if index >= 0 {
			result.Outcomes = append(result.Outcomes, Outcome{Index: index, ID: id, Kind: OutcomeFailed, Err: cause})
		}
		return result, &BatchError{Index: index, ID: id, Err: cause}
	}

	for i := range batch {
		item := &batch[i]
		id := item.Response.ID
		if err := ctx.Err(); err != nil {
			return fail(i, id, err)
		}

		outcome, err := s.uploadItem(ctx, tx, i, item, undo)
		if err != nil {
			return fail(i, id, err)
		}
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Kind == OutcomeDuplicate {
			result.Duplicates = append(result.Duplicates, i)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(-1, "", err)
	}
	if err := tx.Commit(); err != nil {
		return fail(-1, "", fmt.Errorf("commit: %w", err))
	}

	for _, o := range result.Outcomes {
		s.metrics.UploadOutcome(o.Kind.String())
	}
	s.logger.Info("upload batch committed", "items", len(batch), "duplicates", len(result.Duplicates), "files", undo.len())
	return result, nil
}

// uploadItem applies one item inside its own savepoint. A duplicate rolls
// back to the savepoint and removes any file the item already wrote.
func (s *Service) uploadItem(ctx context.Context, tx store.MetaTx, index int, item *SurveyUpload, undo *fileSet) (Outcome, error) {
	id := item.Response.ID
	outcome := Outcome{Index: index, ID: id, Kind: OutcomeInserted}
	savepoint := fmt.Sprintf("item_%d", index)

	if err := tx.Savepoint(ctx, savepoint); err != nil {
		return outcome, err
	}

	itemFiles := &fileSet{}
	err := s.applyItem(ctx, tx, item, itemFiles)
	var dup *errItemDuplicate
	if errors.As(err, &dup) {
		if rbErr := tx.RollbackToSavepoint(ctx, savepoint); rbErr != nil {
			undo.files = append(undo.files, itemFiles.files...)
			return outcome, fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		if relErr := tx.ReleaseSavepoint(ctx, savepoint); relErr != nil {
			undo.files = append(undo.files, itemFiles.files...)
			return outcome, fmt.Errorf("release savepoint: %w", relErr)
		}
		s.remove(ctx, phaseUndo, itemFiles)
		s.logger.Info("duplicate upload item skipped", "index", index, "id", id, "existing", dup.existing)
		outcome.Kind = OutcomeDuplicate
		outcome.ExistingID = dup.existing
		return outcome, nil
	}
	undo.files = append(undo.files, itemFiles.files...)
	if err != nil {
		return outcome, err
	}

	if err := tx.ReleaseSavepoint(ctx, savepoint); err != nil {
		return outcome, fmt.Errorf("release savepoint: %w", err)
	}
	for _, ref := range itemFiles.files {
		outcome.Files = append(outcome.Files, ref.location)
	}
	return outcome, nil
}

func (s *Service) applyItem(ctx context.Context, tx store.MetaTx, item *SurveyUpload, written *fileSet) error {
	sr := item.Response
	sr.Prompts = nil
	if sr.CreatedAt.IsZero() {
		sr.CreatedAt = s.now()
	}
	if err := tx.InsertSurveyResponse(ctx, &sr); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return &errItemDuplicate{existing: sr.ID, err: err}
		}
		return fmt.Errorf("insert survey response: %w", err)
	}

	for j := range item.Prompts {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &item.Prompts[j]
		pr := p.PromptResponse
		pr.SurveyResponseID = sr.ID

		if p.Media != nil {
			blob, err := s.writeMedia(ctx, tx, sr.ID, p.Media, written)
			if err != nil {
				return err
			}
			pr.BlobID = blob.ID
			pr.Kind = blob.Kind
			if pr.Response == "" {
				pr.Response = blob.ID
			}
		}

		if err := tx.InsertPromptResponse(ctx, &pr); err != nil {
			return fmt.Errorf("insert prompt response %s: %w", pr.PromptID, err)
		}
	}
	return nil
}

// writeMedia writes one media payload and its blob row. A blob id that is
// already stored makes the whole item a duplicate.
func (s *Service) writeMedia(ctx context.Context, tx store.MetaTx, owner string, m *MediaUpload, written *fileSet) (*models.Blob, error) {
	tree, err := s.tree(m.Kind)
	if err != nil {
		return nil, err
	}
	existing, err := tx.GetBlob(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup blob %s: %w", m.ID, err)
	}
	if existing != nil {
		return nil, &errItemDuplicate{existing: existing.ID, err: &store.DuplicateError{Table: "blobs", ID: m.ID}}
	}

	res, err := tree.Put(ctx, blobstore.PutRequest{ID: m.ID, Content: m.Content, Variants: m.Variants})
	written.add(tree, res.Files...)
	if err != nil {
		return nil, fmt.Errorf("write blob %s: %w", m.ID, err)
	}

	now := s.now()
	blob := &models.Blob{
		ID:        m.ID,
		Kind:      m.Kind,
		OwnerRef:  "survey_response:" + owner,
		Location:  res.Location,
		SizeBytes: res.SizeBytes,
		Extension: m.Extension,
		SHA256:    res.SHA256,
		Variants:  res.Variants,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.InsertBlob(ctx, blob); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &errItemDuplicate{existing: m.ID, err: err}
		}
		return nil, fmt.Errorf("insert blob %s: %w", m.ID, err)
	}
	return blob, nil
}

// validateBatch normalizes ids in place and rejects malformed items before
// anything is written.
func validateBatch(batch []SurveyUpload) error {
	for i := range batch {
		item := &batch[i]
		id, err := models.NormalizeID(item.Response.ID)
		if err != nil {
			return &BatchError{Index: i, ID: item.Response.ID, Err: err}
		}
		item.Response.ID = id
		privacy, err := models.ParsePrivacyState(string(item.Response.PrivacyState))
		if err != nil {
			return &BatchError{Index: i, ID: id, Err: err}
		}
		item.Response.PrivacyState = privacy
		if strings.TrimSpace(item.Response.Username) == "" {
			return &BatchError{Index: i, ID: id, Err: fmt.Errorf("username is required")}
		}
		for j := range item.Prompts {
			p := &item.Prompts[j]
			if strings.TrimSpace(p.PromptID) == "" {
				return &BatchError{Index: i, ID: id, Err: fmt.Errorf("prompt %d: prompt id is required", j)}
			}
			if p.Media == nil {
				continue
			}
			mediaID, err := models.NormalizeID(p.Media.ID)
			if err != nil {
				return &BatchError{Index: i, ID: id, Err: fmt.Errorf("prompt %s: %w", p.PromptID, err)}
			}
			p.Media.ID = mediaID
			kind, err := models.ParseMediaKind(string(p.Media.Kind))
			if err != nil {
				return &BatchError{Index: i, ID: id, Err: fmt.Errorf("prompt %s: %w", p.PromptID, err)}
			}
			p.Media.Kind = kind
			if p.Media.Content == nil {
				return &BatchError{Index: i, ID: id, Err: fmt.Errorf("prompt %s: media content is required", p.PromptID)}
			}
			for _, v := range p.Media.Variants {
				if !models.IsValidVariant(v.Suffix) {
					return &BatchError{Index: i, ID: id, Err: fmt.Errorf("prompt %s: unknown variant %q", p.PromptID, v.Suffix)}
				}
			}
		}
	}
	return nil
}
