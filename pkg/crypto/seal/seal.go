// Package seal provides authenticated encryption for data at rest.
//
// It picks AES-GCM where hardware acceleration is available and
// ChaCha20-Poly1305 elsewhere. The nonce is generated per message and
// prepended to the sealed output.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes for both algorithms.
const KeySize = 32

// Algorithm identifies the AEAD construction.
type Algorithm string

const (
	AESGCM   Algorithm = "aes-gcm"
	ChaCha20 Algorithm = "chacha20-poly1305"
)

var (
	ErrInvalidKeySize = errors.New("seal: key must be 32 bytes")
	ErrTooShort       = errors.New("seal: sealed data too short")
)

// Sealer seals and opens byte payloads.
type Sealer struct {
	aead cipher.AEAD
	alg  Algorithm
}

// New creates a Sealer, selecting the algorithm for this hardware.
func New(key []byte) (*Sealer, error) {
	if hardwareAES() {
		return NewWith(key, AESGCM)
	}
	return NewWith(key, ChaCha20)
}

// NewWith creates a Sealer with an explicit algorithm.
func NewWith(key []byte, alg Algorithm) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	switch alg {
	case AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &Sealer{aead: aead, alg: AESGCM}, nil
	case ChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		return &Sealer{aead: aead, alg: ChaCha20}, nil
	default:
		return nil, errors.New("seal: unknown algorithm " + string(alg))
	}
}

// Algorithm returns the selected AEAD construction.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Seal encrypts and authenticates plaintext, binding additionalData.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open authenticates and decrypts data produced by Seal.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrTooShort
	}
	nonce := sealed[:s.aead.NonceSize()]
	return s.aead.Open(nil, nonce, sealed[s.aead.NonceSize():], additionalData)
}

// hardwareAES reports whether AES runs hardware-accelerated. Go uses
// AES-NI on amd64 and the ARM crypto extensions on arm64.
func hardwareAES() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
