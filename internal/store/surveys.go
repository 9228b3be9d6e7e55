package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"mediastore/internal/models"
)

var surveyResponseColumns = []string{"id", "username", "campaign_urn", "survey_id", "client", "privacy_state", "epoch_millis", "timezone", "created_at"}

var promptResponseColumns = []string{"survey_response_id", "prompt_id", "prompt_type", "repeatable_set_id", "iteration", "response", "blob_id"}

// InsertSurveyResponse inserts the parent row of an upload item. A
// conflicting id yields *DuplicateError.
func (t *Tx) InsertSurveyResponse(ctx context.Context, sr *models.SurveyResponse) error {
	if sr == nil {
		return fmt.Errorf("survey response is required")
	}
	if sr.CreatedAt.IsZero() {
		sr.CreatedAt = time.Now().UTC()
	}
	if sr.PrivacyState == "" {
		sr.PrivacyState = models.PrivacyPrivate
	}
	_, err := execBuilt(ctx, t.tx, t.b.Insert("survey_responses").Columns(surveyResponseColumns...).Values(
		sr.ID,
		sr.Username,
		sr.CampaignURN,
		sr.SurveyID,
		nullIfEmpty(sr.Client),
		string(sr.PrivacyState),
		sr.EpochMillis,
		nullIfEmpty(sr.Timezone),
		formatTime(sr.CreatedAt),
	))
	return classifyInsert("survey_responses", sr.ID, err)
}

func (t *Tx) InsertPromptResponse(ctx context.Context, pr *models.PromptResponse) error {
	if pr == nil {
		return fmt.Errorf("prompt response is required")
	}
	var iteration any
	if pr.Iteration != nil {
		iteration = *pr.Iteration
	}
	_, err := execBuilt(ctx, t.tx, t.b.Insert("prompt_responses").Columns(promptResponseColumns...).Values(
		pr.SurveyResponseID,
		pr.PromptID,
		pr.PromptType,
		nullIfEmpty(pr.RepeatableSetID),
		iteration,
		pr.Response,
		nullIfEmpty(pr.BlobID),
	))
	return err
}

// ListSurveyResponseBlobs returns the blobs referenced by a response's
// prompts.
func (t *Tx) ListSurveyResponseBlobs(ctx context.Context, surveyResponseID string) ([]models.Blob, error) {
	cols := make([]string, len(blobColumns))
	for i, c := range blobColumns {
		cols[i] = "b." + c
	}
	rows, err := queryBuilt(ctx, t.tx, t.b.Select(cols...).
		From("prompt_responses p").
		Join("blobs b ON b.id = p.blob_id").
		Where(sq.Eq{"p.survey_response_id": surveyResponseID}).
		OrderBy("b.id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, *blob)
	}
	return blobs, rows.Err()
}

// DeleteSurveyResponse removes a response, its prompt rows and the blob rows
// they reference.
func (t *Tx) DeleteSurveyResponse(ctx context.Context, id string) error {
	if _, err := execBuilt(ctx, t.tx, t.b.Delete("blobs").Where(
		sq.Expr("id IN (SELECT blob_id FROM prompt_responses WHERE survey_response_id = ? AND blob_id IS NOT NULL)", id),
	)); err != nil {
		return err
	}
	if _, err := execBuilt(ctx, t.tx, t.b.Delete("prompt_responses").Where(sq.Eq{"survey_response_id": id})); err != nil {
		return err
	}
	res, err := execBuilt(ctx, t.tx, t.b.Delete("survey_responses").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return requireAffected(res, "survey response", id)
}

// GetSurveyResponse returns a response with its prompts, or nil when absent.
func (s *Store) GetSurveyResponse(ctx context.Context, id string) (*models.SurveyResponse, error) {
	row, err := queryRowBuilt(ctx, s.db, s.builder.Select(surveyResponseColumns...).From("survey_responses").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	sr, err := scanSurveyResponse(row)
	if err != nil || sr == nil {
		return sr, err
	}

	rows, err := queryBuilt(ctx, s.db, s.builder.Select(promptResponseColumns...).From("prompt_responses").
		Where(sq.Eq{"survey_response_id": id}).
		OrderBy("prompt_id", "repeatable_set_id", "iteration"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		pr, err := scanPromptResponse(rows)
		if err != nil {
			return nil, err
		}
		sr.Prompts = append(sr.Prompts, *pr)
	}
	return sr, rows.Err()
}

func scanSurveyResponse(scanner interface {
	Scan(dest ...any) error
}) (*models.SurveyResponse, error) {
	sr := models.SurveyResponse{}
	var client, timezone sql.NullString
	var privacy, createdAt string
	err := scanner.Scan(&sr.ID, &sr.Username, &sr.CampaignURN, &sr.SurveyID, &client, &privacy, &sr.EpochMillis, &timezone, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	sr.Client = client.String
	sr.Timezone = timezone.String
	sr.PrivacyState = models.PrivacyState(privacy)
	if sr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &sr, nil
}

func scanPromptResponse(scanner interface {
	Scan(dest ...any) error
}) (*models.PromptResponse, error) {
	pr := models.PromptResponse{}
	var setID, blobID sql.NullString
	var iteration sql.NullInt64
	if err := scanner.Scan(&pr.SurveyResponseID, &pr.PromptID, &pr.PromptType, &setID, &iteration, &pr.Response, &blobID); err != nil {
		return nil, err
	}
	pr.RepeatableSetID = setID.String
	pr.BlobID = blobID.String
	if iteration.Valid {
		n := int(iteration.Int64)
		pr.Iteration = &n
	}
	return &pr, nil
}
