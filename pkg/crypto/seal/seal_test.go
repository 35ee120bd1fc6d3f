package seal

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AESGCM, ChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			s, err := NewWith(testKey(), alg)
			if err != nil {
				t.Fatalf("NewWith failed: %v", err)
			}

			plain := []byte(`{"keys":[{"name":"welcome"}]}`)
			aad := []byte("project-42")

			sealed, err := s.Seal(plain, aad)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			if bytes.Contains(sealed, plain) {
				t.Fatal("sealed output contains plaintext")
			}

			opened, err := s.Open(sealed, aad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(opened, plain) {
				t.Errorf("round trip mismatch: %s", opened)
			}
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := New(testKey())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sealed, err := s.Seal([]byte("payload"), nil)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	sealed[len(sealed)-1] ^= 0x01
	if _, err := s.Open(sealed, nil); err == nil {
		t.Fatal("Open accepted tampered data")
	}
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	s, err := New(testKey())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sealed, err := s.Seal([]byte("payload"), []byte("project-1"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := s.Open(sealed, []byte("project-2")); err == nil {
		t.Fatal("Open accepted wrong additional data")
	}
}

func TestKeySizeValidation(t *testing.T) {
	if _, err := New([]byte("short")); err != ErrInvalidKeySize {
		t.Errorf("err = %v, want ErrInvalidKeySize", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	s, err := New(testKey())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.Open([]byte{1, 2, 3}, nil); err != ErrTooShort {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}
