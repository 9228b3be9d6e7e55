package models

import "time"

// Document is a named file owned by a user. Its payload is the blob with the
// same ID.
type Document struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	PrivacyState PrivacyState `json:"privacy_state"`
	Creator      string       `json:"creator"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Blob         *Blob        `json:"blob,omitempty"`
}
