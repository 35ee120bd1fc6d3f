package service

import (
	"context"
	"errors"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/domain"
)

// ErrBlobNotFound is returned by BlobStore implementations when the
// addressed blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Store is the transactional persistence port for a project's keys,
// translations, history ledger and snapshot records.
//
// Each callback runs inside one storage transaction scoped to a single
// project: if the callback returns an error, every staged mutation is
// discarded. This is what makes push, revert and restore all-or-nothing.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, projectID int64, fn func(tx ReadTx) error) error

	// Update runs fn in a read-write transaction. The transaction
	// commits only if fn returns nil.
	Update(ctx context.Context, projectID int64, fn func(tx Tx) error) error
}

// ReadTx reads project state within a transaction.
//
// Lookup methods return (nil, nil) when the record is absent; an error
// always means the storage layer itself failed.
type ReadTx interface {
	// GetKey returns the resource key with the given name.
	GetKey(name string) (*domain.ResourceKey, error)

	// Keys returns every resource key of the project, ordered by name.
	Keys() ([]*domain.ResourceKey, error)

	// GetTranslation returns the row at (keyName, language, pluralForm).
	GetTranslation(keyName, language, pluralForm string) (*domain.TranslationEntry, error)

	// Translations returns every row of the given key, ordered by
	// (language, plural form).
	Translations(keyName string) ([]*domain.TranslationEntry, error)

	// LastChangeAt returns the newest UpdatedAt across the project's
	// keys and translations, zero when the project is empty.
	LastChangeAt() (time.Time, error)

	// GetHistory returns a ledger entry by id.
	GetHistory(id string) (*domain.HistoryEntry, error)

	// ListHistory returns ledger entries newest first, plus the total
	// count before pagination.
	ListHistory(limit, offset int) ([]*domain.HistoryEntry, int, error)

	// GetSnapshot returns a snapshot record by id.
	GetSnapshot(id string) (*domain.SnapshotRecord, error)

	// ListSnapshots returns every snapshot record, oldest first.
	ListSnapshots() ([]*domain.SnapshotRecord, error)
}

// Tx extends ReadTx with mutations. Implementations stamp the ProjectID
// of written records from the transaction's project scope.
type Tx interface {
	ReadTx

	// PutKey creates or replaces a resource key.
	PutKey(key *domain.ResourceKey) error

	// DeleteKey removes a key and cascades its translations.
	DeleteKey(name string) error

	// PutTranslation creates or replaces a translation row.
	PutTranslation(entry *domain.TranslationEntry) error

	// DeleteTranslation removes one translation row if present.
	DeleteTranslation(keyName, language, pluralForm string) error

	// ReplaceAll drops every key and translation of the project and
	// inserts the given state. Used by snapshot restore.
	ReplaceAll(keys []*domain.ResourceKey, entries []*domain.TranslationEntry) error

	// AppendHistory appends a ledger entry.
	AppendHistory(entry *domain.HistoryEntry) error

	// MarkHistoryReverted flips a ledger entry's status to reverted.
	MarkHistoryReverted(id string) error

	// PutSnapshot creates or replaces a snapshot record.
	PutSnapshot(record *domain.SnapshotRecord) error

	// DeleteSnapshot removes a snapshot record.
	DeleteSnapshot(id string) error
}

// BlobStore persists opaque snapshot payloads outside the relational
// store, addressed by (projectID, snapshotID, fileName).
type BlobStore interface {
	Put(ctx context.Context, projectID int64, snapshotID, name string, data []byte) error

	// Get returns ErrBlobNotFound when the blob does not exist.
	Get(ctx context.Context, projectID int64, snapshotID, name string) ([]byte, error)

	Delete(ctx context.Context, projectID int64, snapshotID, name string) error
}

// Authorizer is the capability oracle consulted before every operation.
// Authorization decisions themselves are made elsewhere.
type Authorizer interface {
	CanView(ctx context.Context, projectID, userID int64) bool
	CanManage(ctx context.Context, projectID, userID int64) bool
}

// ProjectCatalog resolves per-project facts owned by the surrounding
// application: the default language code and the billing plan's snapshot
// limits.
type ProjectCatalog interface {
	DefaultLanguage(ctx context.Context, projectID int64) (string, error)
	PlanFor(ctx context.Context, projectID int64) (domain.Plan, error)
}
