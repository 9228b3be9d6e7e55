package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MediaKind names one storage tree. Each kind gets its own allocator and root.
type MediaKind string

const (
	KindDocument MediaKind = "document"
	KindImage    MediaKind = "image"
	KindAudio    MediaKind = "audio"
	KindVideo    MediaKind = "video"
	KindFile     MediaKind = "file"
)

// PrivacyState controls who may read a response or document.
type PrivacyState string

const (
	PrivacyPrivate PrivacyState = "private"
	PrivacyShared  PrivacyState = "shared"
)

// Variant suffixes stored next to a primary blob file.
const (
	VariantScaled = "-s"
)

// MediaKinds lists every supported kind in a stable order.
var MediaKinds = []MediaKind{KindDocument, KindImage, KindAudio, KindVideo, KindFile}

var validMediaKinds = map[MediaKind]struct{}{
	KindDocument: {},
	KindImage:    {},
	KindAudio:    {},
	KindVideo:    {},
	KindFile:     {},
}

var validPrivacyStates = map[PrivacyState]struct{}{
	PrivacyPrivate: {},
	PrivacyShared:  {},
}

// ParseMediaKind normalizes and validates a media kind.
func ParseMediaKind(raw string) (MediaKind, error) {
	value := MediaKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("media kind is required")
	}
	if _, ok := validMediaKinds[value]; !ok {
		return "", fmt.Errorf("invalid media kind: %s", value)
	}
	return value, nil
}

// ParsePrivacyState normalizes a privacy state. Empty defaults to private.
func ParsePrivacyState(raw string) (PrivacyState, error) {
	value := PrivacyState(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return PrivacyPrivate, nil
	}
	if _, ok := validPrivacyStates[value]; !ok {
		return "", fmt.Errorf("invalid privacy state: %s", value)
	}
	return value, nil
}

// NormalizeID validates a caller-assigned UUID and returns its canonical
// lower-case hyphenated form.
func NormalizeID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id.String(), nil
}

// IsValidVariant reports whether suffix is a known variant suffix.
func IsValidVariant(suffix string) bool {
	return suffix == VariantScaled
}
