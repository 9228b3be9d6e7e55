package models

import "time"

// SurveyResponse is one completed survey uploaded by a client.
type SurveyResponse struct {
	ID           string           `json:"id"`
	Username     string           `json:"username"`
	CampaignURN  string           `json:"campaign_urn"`
	SurveyID     string           `json:"survey_id"`
	Client       string           `json:"client,omitempty"`
	PrivacyState PrivacyState     `json:"privacy_state"`
	EpochMillis  int64            `json:"epoch_millis"`
	Timezone     string           `json:"timezone,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Prompts      []PromptResponse `json:"prompts,omitempty"`
}

// PromptResponse is one answer within a survey response. Media prompts carry
// the referenced blob ID in BlobID and Response.
type PromptResponse struct {
	SurveyResponseID string    `json:"survey_response_id"`
	PromptID         string    `json:"prompt_id"`
	PromptType       string    `json:"prompt_type"`
	RepeatableSetID  string    `json:"repeatable_set_id,omitempty"`
	Iteration        *int      `json:"iteration,omitempty"`
	Response         string    `json:"response"`
	BlobID           string    `json:"blob_id,omitempty"`
	Kind             MediaKind `json:"kind,omitempty"`
}
