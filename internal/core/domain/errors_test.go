package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Is(t *testing.T) {
	err := ErrHistoryNotFound.WithDetails("lxh-abc")
	if !errors.Is(err, ErrHistoryNotFound) {
		t.Fatal("errors.Is should match on code")
	}
	if errors.Is(err, ErrSnapshotNotFound) {
		t.Fatal("errors.Is matched a different code")
	}
}

func TestDomainError_WrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrStorage.WithCause(cause)
	if !errors.Is(err, ErrStorage) {
		t.Fatal("wrapped error lost its code")
	}
	if errors.Unwrap(err) != cause {
		t.Fatal("Unwrap did not return the cause")
	}
	if GetErrorCode(err) != "LX-SYS-5001" {
		t.Fatalf("GetErrorCode = %q", GetErrorCode(err))
	}
}

func TestDomainError_Message(t *testing.T) {
	err := ErrSnapshotQuotaExceeded.WithDetails("limit 2")
	want := "[LX-SNAP-4002] snapshot quota exceeded: limit 2"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
