package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error
// code. Public operations return these instead of ad-hoc sentinel errors
// so callers can branch on codes without string matching.
type DomainError struct {
	Code    string // Error code (e.g. "LX-HIST-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support: two DomainErrors match on Code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: e.Details, Cause: cause}
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Sync errors (SYNC)
var (
	// ErrAccessDenied indicates the caller lacks the required project
	// capability. Always raised before any mutation.
	ErrAccessDenied = NewDomainError("LX-SYNC-4030", "access denied")

	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = NewDomainError("LX-SYNC-4040", "project not found")

	// ErrKeyNotFound indicates the resource key does not exist.
	ErrKeyNotFound = NewDomainError("LX-SYNC-4041", "resource key not found")

	// ErrRateLimited indicates the project's push rate was exceeded.
	ErrRateLimited = NewDomainError("LX-SYNC-4290", "push rate limit exceeded")
)

// History errors (HIST)
var (
	// ErrHistoryNotFound indicates the ledger entry does not exist.
	ErrHistoryNotFound = NewDomainError("LX-HIST-4040", "history entry not found")

	// ErrAlreadyReverted indicates the ledger entry was already reverted.
	ErrAlreadyReverted = NewDomainError("LX-HIST-4090", "history entry already reverted")

	// ErrEmptyHistory indicates the ledger entry has no changes to invert.
	ErrEmptyHistory = NewDomainError("LX-HIST-4001", "history entry has no changes")
)

// Snapshot errors (SNAP)
var (
	// ErrSnapshotNotFound indicates the snapshot record does not exist.
	ErrSnapshotNotFound = NewDomainError("LX-SNAP-4040", "snapshot not found")

	// ErrSnapshotBlobMissing indicates the record exists but its state
	// blob is gone; restore fails without mutation.
	ErrSnapshotBlobMissing = NewDomainError("LX-SNAP-4041", "snapshot state blob missing")

	// ErrSnapshotQuotaExceeded indicates the plan's snapshot cap was
	// reached; checked before any state is captured.
	ErrSnapshotQuotaExceeded = NewDomainError("LX-SNAP-4002", "snapshot quota exceeded")

	// ErrSnapshotSchema indicates the blob's schema version is not
	// understood by this build.
	ErrSnapshotSchema = NewDomainError("LX-SNAP-4220", "unsupported snapshot schema version")
)

// System errors (SYS)
var (
	// ErrStorage indicates a storage layer failure; the enclosing
	// transaction was rolled back in full.
	ErrStorage = NewDomainError("LX-SYS-5001", "storage error")

	// ErrInvalidArgument indicates a malformed request field.
	ErrInvalidArgument = NewDomainError("LX-ARG-1001", "invalid argument")
)
