package domain

import "time"

// OperationType is the kind of ledger operation.
type OperationType string

const (
	OperationPush   OperationType = "push"
	OperationRevert OperationType = "revert"
)

// ChangeType classifies one recorded change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// HistoryStatus is the lifecycle state of a ledger entry.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryReverted  HistoryStatus = "reverted"
)

// Change records one translation-level change with enough before/after
// state to compute and apply its inverse.
type Change struct {
	KeyName  string     `json:"key"`
	Language string     `json:"lang"`
	Type     ChangeType `json:"change_type"`

	BeforeValue   string `json:"before_value,omitempty"`
	BeforeHash    string `json:"before_hash,omitempty"`
	BeforeComment string `json:"before_comment,omitempty"`

	AfterValue   string `json:"after_value,omitempty"`
	AfterHash    string `json:"after_hash,omitempty"`
	AfterComment string `json:"after_comment,omitempty"`

	// Key shape at the time of the change. A revert of a whole-key
	// deletion re-creates the key from these, so they must survive the
	// ledger round trip.
	IsPlural         bool   `json:"is_plural,omitempty"`
	SourcePluralText string `json:"source_plural_text,omitempty"`
}

// Inverse returns the change that undoes c.
//
//	added    -> deleted  (remove the row that was created)
//	modified -> modified (restore the Before* fields)
//	deleted  -> added    (re-create the row from the Before* fields)
func (c Change) Inverse() Change {
	switch c.Type {
	case ChangeAdded:
		return Change{
			KeyName:          c.KeyName,
			Language:         c.Language,
			Type:             ChangeDeleted,
			BeforeValue:      c.AfterValue,
			BeforeHash:       c.AfterHash,
			BeforeComment:    c.AfterComment,
			IsPlural:         c.IsPlural,
			SourcePluralText: c.SourcePluralText,
		}
	case ChangeDeleted:
		return Change{
			KeyName:          c.KeyName,
			Language:         c.Language,
			Type:             ChangeAdded,
			AfterValue:       c.BeforeValue,
			AfterHash:        c.BeforeHash,
			AfterComment:     c.BeforeComment,
			IsPlural:         c.IsPlural,
			SourcePluralText: c.SourcePluralText,
		}
	default:
		return Change{
			KeyName:          c.KeyName,
			Language:         c.Language,
			Type:             ChangeModified,
			BeforeValue:      c.AfterValue,
			BeforeHash:       c.AfterHash,
			BeforeComment:    c.AfterComment,
			AfterValue:       c.BeforeValue,
			AfterHash:        c.BeforeHash,
			AfterComment:     c.BeforeComment,
			IsPlural:         c.IsPlural,
			SourcePluralText: c.SourcePluralText,
		}
	}
}

// HistoryEntry is one append-only ledger record of a push or revert.
//
// Immutable once written, except for the Status flip to HistoryReverted.
// RevertedFromID is a non-owning id reference from a revert entry back to
// the entry it undid. It is a lookup key, never a parent pointer.
type HistoryEntry struct {
	ID        string        `json:"id"`
	ProjectID int64         `json:"project_id"`
	UserID    int64         `json:"user_id"`
	Operation OperationType `json:"operation"`
	Message   string        `json:"message,omitempty"`

	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`

	Changes []Change `json:"changes"`

	Status         HistoryStatus `json:"status"`
	RevertedFromID string        `json:"reverted_from_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CountChanges fills the Added/Modified/Deleted counters from Changes.
func (h *HistoryEntry) CountChanges() {
	h.Added, h.Modified, h.Deleted = 0, 0, 0
	for _, c := range h.Changes {
		switch c.Type {
		case ChangeAdded:
			h.Added++
		case ChangeModified:
			h.Modified++
		case ChangeDeleted:
			h.Deleted++
		}
	}
}

// Clone returns a deep copy of the entry.
func (h *HistoryEntry) Clone() *HistoryEntry {
	c := *h
	c.Changes = make([]Change, len(h.Changes))
	copy(c.Changes, h.Changes)
	return &c
}
