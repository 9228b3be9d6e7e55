package models

import "time"

// Blob is the metadata row for one stored payload. Location changes on
// replace; ID never does.
type Blob struct {
	ID        string    `json:"id"`
	Kind      MediaKind `json:"kind"`
	OwnerRef  string    `json:"owner_ref,omitempty"`
	Location  string    `json:"location"`
	SizeBytes int64     `json:"size_bytes"`
	Extension string    `json:"extension,omitempty"`
	SHA256    string    `json:"sha256"`
	Variants  []string  `json:"variants,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Files returns the primary location followed by every variant location.
func (b *Blob) Files() []string {
	if b == nil || b.Location == "" {
		return nil
	}
	out := make([]string, 0, len(b.Variants)+1)
	out = append(out, b.Location)
	for _, suffix := range b.Variants {
		out = append(out, b.Location+suffix)
	}
	return out
}
