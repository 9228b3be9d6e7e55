package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mediastore/internal/blobstore"
	"mediastore/internal/media"
	"mediastore/internal/models"
)

// uploadManifest is the YAML document read by `mediastore upload`. Media
// file paths are relative to the manifest.
type uploadManifest struct {
	Surveys []manifestSurvey `yaml:"surveys"`
}

type manifestSurvey struct {
	ID           string           `yaml:"id"`
	Username     string           `yaml:"username"`
	CampaignURN  string           `yaml:"campaign_urn"`
	SurveyID     string           `yaml:"survey_id"`
	Client       string           `yaml:"client"`
	PrivacyState string           `yaml:"privacy_state"`
	EpochMillis  int64            `yaml:"epoch_millis"`
	Timezone     string           `yaml:"timezone"`
	Prompts      []manifestPrompt `yaml:"prompts"`
}

type manifestPrompt struct {
	PromptID        string         `yaml:"prompt_id"`
	Type            string         `yaml:"type"`
	RepeatableSetID string         `yaml:"repeatable_set_id"`
	Iteration       *int           `yaml:"iteration"`
	Response        string         `yaml:"response"`
	Media           *manifestMedia `yaml:"media"`
}

type manifestMedia struct {
	ID     string `yaml:"id"`
	Kind   string `yaml:"kind"`
	File   string `yaml:"file"`
	Scaled string `yaml:"scaled"`
}

func parseManifest(r io.Reader) (*uploadManifest, error) {
	var m uploadManifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Surveys) == 0 {
		return nil, errors.New("manifest lists no surveys")
	}
	return &m, nil
}

// openedBatch holds the batch built from a manifest and the files it reads.
type openedBatch struct {
	items []media.SurveyUpload
	files []*os.File
}

func (b *openedBatch) Close() {
	for _, f := range b.files {
		_ = f.Close()
	}
}

func (b *openedBatch) open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	b.files = append(b.files, f)
	return f, nil
}

// build turns the manifest into upload items, assigning UUIDs where the
// manifest leaves them out. The caller must Close the result.
func (m *uploadManifest) build(baseDir string) (*openedBatch, error) {
	batch := &openedBatch{items: make([]media.SurveyUpload, 0, len(m.Surveys))}
	for i, s := range m.Surveys {
		item := media.SurveyUpload{Response: models.SurveyResponse{
			ID:           orNewID(s.ID),
			Username:     s.Username,
			CampaignURN:  s.CampaignURN,
			SurveyID:     s.SurveyID,
			Client:       s.Client,
			PrivacyState: models.PrivacyState(s.PrivacyState),
			EpochMillis:  s.EpochMillis,
			Timezone:     s.Timezone,
		}}
		for j, p := range s.Prompts {
			prompt := media.PromptUpload{PromptResponse: models.PromptResponse{
				PromptID:        p.PromptID,
				PromptType:      p.Type,
				RepeatableSetID: p.RepeatableSetID,
				Iteration:       p.Iteration,
				Response:        p.Response,
			}}
			if p.Media != nil {
				mu, err := batch.media(baseDir, p.Media)
				if err != nil {
					batch.Close()
					return nil, fmt.Errorf("survey %d prompt %d: %w", i, j, err)
				}
				prompt.Media = mu
			}
			item.Prompts = append(item.Prompts, prompt)
		}
		batch.items = append(batch.items, item)
	}
	return batch, nil
}

func (b *openedBatch) media(baseDir string, m *manifestMedia) (*media.MediaUpload, error) {
	kind, err := models.ParseMediaKind(m.Kind)
	if err != nil {
		return nil, err
	}
	if m.File == "" {
		return nil, errors.New("media file is required")
	}
	f, err := b.open(resolvePath(baseDir, m.File))
	if err != nil {
		return nil, err
	}
	mu := &media.MediaUpload{
		ID:        orNewID(m.ID),
		Kind:      kind,
		Extension: extensionOf(m.File),
		Content:   f,
	}
	if m.Scaled != "" {
		scaled, err := b.open(resolvePath(baseDir, m.Scaled))
		if err != nil {
			return nil, err
		}
		mu.Variants = []blobstore.Variant{{Suffix: models.VariantScaled, Content: scaled}}
	}
	return mu, nil
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func orNewID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}
