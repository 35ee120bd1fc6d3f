package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/lexsync/lexsync-go/internal/core/service"
)

// BlobStore keeps snapshot payloads in memory. Tests and the in-process
// tooling pair it with Store.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func blobKey(projectID int64, snapshotID, name string) string {
	return fmt.Sprintf("%d/%s/%s", projectID, snapshotID, name)
}

// Put stores a copy of data.
func (b *BlobStore) Put(_ context.Context, projectID int64, snapshotID, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.blobs[blobKey(projectID, snapshotID, name)] = cp
	return nil
}

// Get returns a copy of the stored payload.
func (b *BlobStore) Get(_ context.Context, projectID int64, snapshotID, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[blobKey(projectID, snapshotID, name)]
	if !ok {
		return nil, service.ErrBlobNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete removes the blob if present.
func (b *BlobStore) Delete(_ context.Context, projectID int64, snapshotID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, blobKey(projectID, snapshotID, name))
	return nil
}

// Len reports the number of stored blobs, for tests.
func (b *BlobStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
