package domain

import "time"

// ConflictType classifies how a submitted change collided with the stored
// state.
type ConflictType string

const (
	// ConflictBothModified: the client's base hash no longer matches the
	// stored content; both sides edited since the client's last pull.
	ConflictBothModified ConflictType = "both_modified"

	// ConflictDeletedLocallyModifiedRemotely: the client asked to delete
	// content whose stored hash no longer matches its base hash.
	ConflictDeletedLocallyModifiedRemotely ConflictType = "deleted_locally_modified_remotely"
)

// Conflict is a first-class push outcome, never an error: the whole batch
// is rolled back and the list is returned for the caller to resolve.
type Conflict struct {
	KeyName  string       `json:"key"`
	Language string       `json:"lang"`
	Type     ConflictType `json:"type"`

	// LocalValue is the value the client submitted.
	LocalValue string `json:"local_value"`

	// RemoteValue, RemoteHash and RemoteUpdatedAt describe the stored
	// state the client must rebase onto.
	RemoteValue     string    `json:"remote_value"`
	RemoteHash      string    `json:"remote_hash"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
}

// ResolutionMode selects how a single conflict is settled.
type ResolutionMode string

const (
	// ResolveLocal reapplies the client's value.
	ResolveLocal ResolutionMode = "local"

	// ResolveRemote keeps the stored value untouched.
	ResolveRemote ResolutionMode = "remote"

	// ResolveEdit applies a freshly edited value.
	ResolveEdit ResolutionMode = "edit"
)

// IsValidResolutionMode checks if a string is a valid resolution mode.
func IsValidResolutionMode(m string) bool {
	switch ResolutionMode(m) {
	case ResolveLocal, ResolveRemote, ResolveEdit:
		return true
	}
	return false
}

// Resolution settles one (key, language) conflict.
//
// ResolveLocal and ResolveEdit both apply Value as the new stored value;
// the two modes are kept distinct for interface compatibility with
// clients that report which path the user took.
type Resolution struct {
	KeyName  string         `json:"key"`
	Language string         `json:"lang"`
	Mode     ResolutionMode `json:"resolution"`
	Value    string         `json:"edited_value,omitempty"`
}
