package domain

import "time"

// DefaultLanguage is the reserved sentinel language code meaning "the
// project's default language".
//
// It must round-trip verbatim through push/pull/resolve/revert: resolving
// it to a human-readable code is a display-only concern, and doing it
// inside sync logic would break hash comparisons.
const DefaultLanguage = ""

// SingularForm is the plural-form value used for non-plural translation
// rows. A non-empty form (e.g. "one", "other") denotes one plural variant.
const SingularForm = ""

// Status is the review state of a translation entry.
//
// The review state machine is owned by a separate workflow; sync only ever
// writes StatusTranslated on upsert.
type Status string

const (
	StatusPending    Status = "pending"
	StatusTranslated Status = "translated"
	StatusReviewed   Status = "reviewed"
	StatusApproved   Status = "approved"
)

// IsValidStatus checks if a string is a valid translation status.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusTranslated, StatusReviewed, StatusApproved:
		return true
	}
	return false
}

// ResourceKey is a translatable key owned by a project.
//
// The (ProjectID, Name) pair is unique. Plural keys carry the
// source-language plural template, set once at creation.
type ResourceKey struct {
	ProjectID        int64  `json:"project_id"`
	Name             string `json:"name"`
	IsPlural         bool   `json:"is_plural"`
	SourcePluralText string `json:"source_plural_text,omitempty"`
	Comment          string `json:"comment,omitempty"`

	// Version increments on every structural change.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of the key.
func (k *ResourceKey) Clone() *ResourceKey {
	c := *k
	return &c
}

// TranslationEntry is one stored translation row.
//
// The row is addressed by (ProjectID, KeyName, Language, PluralForm).
// PluralForm is SingularForm for non-plural values. All rows of one plural
// key share the same Hash, computed over the whole form map.
type TranslationEntry struct {
	ProjectID  int64  `json:"project_id"`
	KeyName    string `json:"key_name"`
	Language   string `json:"language"`
	PluralForm string `json:"plural_form"`

	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
	Hash    string `json:"hash"`
	Status  Status `json:"status"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of the entry.
func (e *TranslationEntry) Clone() *TranslationEntry {
	c := *e
	return &c
}
