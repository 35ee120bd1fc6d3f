package domain

import "time"

// SnapshotType tags why a snapshot was taken. Free-form; these are the
// tags the subsystem itself writes.
const (
	SnapshotManual     = "manual"
	SnapshotPreRestore = "pre-restore"
	SnapshotRestore    = "restore"
	SnapshotScheduled  = "scheduled"
)

// StateSchemaVersion is the current serialized project-state schema.
const StateSchemaVersion = 1

// SnapshotRecord is the relational side of a snapshot: metadata and
// counts. The serialized state itself lives as an opaque blob addressed
// by (ProjectID, SnapshotID) and is never embedded here.
type SnapshotRecord struct {
	ID              string `json:"id"`
	ProjectID       int64  `json:"project_id"`
	CreatedByUserID int64  `json:"created_by_user_id,omitempty"`
	Description     string `json:"description,omitempty"`
	Type            string `json:"type"`

	KeyCount         int `json:"key_count"`
	TranslationCount int `json:"translation_count"`

	// LanguageCount is the number of distinct language codes in the
	// snapshot, used as a proxy for "file count".
	LanguageCount int `json:"language_count"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of the record.
func (r *SnapshotRecord) Clone() *SnapshotRecord {
	c := *r
	return &c
}

// ProjectState is the versioned snapshot blob schema: the full capture of
// a project's keys and translations at a point in time, ordered by key
// name so identical states serialize identically.
type ProjectState struct {
	SchemaVersion int        `json:"schema_version"`
	ProjectID     int64      `json:"project_id"`
	TakenAt       time.Time  `json:"taken_at"`
	Keys          []StateKey `json:"keys"`
}

// StateKey is one resource key inside a ProjectState.
type StateKey struct {
	Name             string             `json:"name"`
	IsPlural         bool               `json:"is_plural"`
	SourcePluralText string             `json:"source_plural_text,omitempty"`
	Comment          string             `json:"comment,omitempty"`
	Translations     []StateTranslation `json:"translations"`
}

// StateTranslation is one translation row inside a StateKey.
type StateTranslation struct {
	Language   string `json:"lang"`
	PluralForm string `json:"plural_form,omitempty"`
	Value      string `json:"value"`
	Comment    string `json:"comment,omitempty"`
	Hash       string `json:"hash"`
	Status     Status `json:"status"`
}

// Counts returns the key, translation and distinct-language counts of the
// state.
func (s *ProjectState) Counts() (keys, translations, languages int) {
	langs := make(map[string]struct{})
	for _, k := range s.Keys {
		keys++
		for _, tr := range k.Translations {
			translations++
			langs[tr.Language] = struct{}{}
		}
	}
	return keys, translations, len(langs)
}
