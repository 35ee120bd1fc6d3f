// Package snapshot stores snapshot payload blobs on the filesystem.
//
// Each blob is wrapped in a checksummed envelope: magic bytes, a
// length-prefixed JSON header, the length-prefixed payload and a sha256
// trailer over everything before it. Files are written to a temp path
// and renamed into place, so readers never observe a partial blob.
// Payloads can optionally be sealed with an authenticated cipher.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lexsync/lexsync-go/internal/core/service"
	"github.com/lexsync/lexsync-go/pkg/crypto/seal"
)

// Magic bytes identify blob files.
var magicBytes = []byte("LEXSBLOB")

const (
	fileExtension = ".blob"
	checksumSize  = 32
	headerVersion = 1
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

type blobHeader struct {
	Version    int    `json:"version"`
	ProjectID  int64  `json:"project_id"`
	SnapshotID string `json:"snapshot_id"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"created_at"`
	Encrypted  bool   `json:"encrypted"`
}

// FileStore is a filesystem-backed blob store.
type FileStore struct {
	dir    string
	sealer *seal.Sealer
}

// Option configures the FileStore.
type Option func(*FileStore)

// WithSealer encrypts payloads at rest. Blobs written without a sealer
// remain readable; sealed blobs require the same key to open.
func WithSealer(s *seal.Sealer) Option {
	return func(fs *FileStore) { fs.sealer = s }
}

// NewFileStore creates a blob store rooted at dir.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}

	fs := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FileStore) path(projectID int64, snapshotID, name string) string {
	return filepath.Join(fs.dir, strconv.FormatInt(projectID, 10), snapshotID, name+fileExtension)
}

// aad binds a sealed payload to its address, so a blob copied to another
// snapshot's path fails to open.
func aad(projectID int64, snapshotID, name string) []byte {
	return []byte(fmt.Sprintf("%d/%s/%s", projectID, snapshotID, name))
}

// Put writes data as a new blob, replacing any existing one.
func (fs *FileStore) Put(_ context.Context, projectID int64, snapshotID, name string, data []byte) error {
	finalPath := fs.path(projectID, snapshotID, name)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0750); err != nil {
		return fmt.Errorf("snapshot: create blob dir: %w", err)
	}

	payload := data
	if fs.sealer != nil {
		sealed, err := fs.sealer.Seal(data, aad(projectID, snapshotID, name))
		if err != nil {
			return fmt.Errorf("snapshot: seal: %w", err)
		}
		payload = sealed
	}

	hdr := blobHeader{
		Version:    headerVersion,
		ProjectID:  projectID,
		SnapshotID: snapshotID,
		Name:       name,
		CreatedAt:  time.Now().UnixMilli(),
		Encrypted:  fs.sealer != nil,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("snapshot: marshal header: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	hash := sha256.New()
	writer := io.MultiWriter(file, hash)

	write := func(b []byte) error {
		_, err := writer.Write(b)
		return err
	}
	writeLen := func(n int) error {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		return write(buf[:])
	}

	err = errors.Join(
		write(magicBytes),
		writeLen(len(hdrJSON)),
		write(hdrJSON),
		writeLen(len(payload)),
		write(payload),
	)
	if err != nil {
		file.Close()
		return fmt.Errorf("snapshot: write blob: %w", err)
	}

	// Checksum trailer covers everything written so far.
	if _, err := file.Write(hash.Sum(nil)); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Get reads and verifies a blob, returning its payload.
func (fs *FileStore) Get(_ context.Context, projectID int64, snapshotID, name string) ([]byte, error) {
	f, err := os.Open(fs.path(projectID, snapshotID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, service.ErrBlobNotFound
		}
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, ErrChecksumMismatch
	}

	// Verify the trailer before trusting any field.
	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br)
	if err != nil {
		return nil, err
	}
	var hdr blobHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}

	payload, err := readBlock(br)
	if err != nil {
		return nil, err
	}

	if hdr.Encrypted {
		if fs.sealer == nil {
			return nil, fmt.Errorf("snapshot: blob is encrypted and no key is configured")
		}
		plain, err := fs.sealer.Open(payload, aad(projectID, snapshotID, name))
		if err != nil {
			return nil, fmt.Errorf("snapshot: open sealed payload: %w", err)
		}
		payload = plain
	}
	return payload, nil
}

// Delete removes a blob; deleting an absent blob is not an error.
func (fs *FileStore) Delete(_ context.Context, projectID int64, snapshotID, name string) error {
	err := os.Remove(fs.path(projectID, snapshotID, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	// Prune the snapshot directory once its last blob is gone.
	_ = os.Remove(filepath.Dir(fs.path(projectID, snapshotID, name)))
	return nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	block := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return block, nil
}
