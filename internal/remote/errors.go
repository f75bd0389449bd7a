package remote

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pattern store failures. The sync engine uses the
// code to separate "transient failure, retry" from "stale data, do not
// blindly retry".
type ErrorCode string

const (
	// CodeVersionConflict indicates the stored version no longer matches
	// the caller's expected version. Non-retryable without a refresh.
	CodeVersionConflict ErrorCode = "VERSION_CONFLICT"

	// CodeNotFound indicates the target pattern does not exist server-side.
	// Treated as success for deletes, failure otherwise.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodePermissionDenied indicates the caller may not touch the pattern.
	// Terminal - never retried.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodeNetworkUnavailable indicates the store was unreachable.
	// The sync engine defers and retries later.
	CodeNetworkUnavailable ErrorCode = "NETWORK_UNAVAILABLE"

	// CodeRemote indicates any other server-reported failure.
	CodeRemote ErrorCode = "REMOTE_ERROR"
)

// StoreError is an error reported by (or on the way to) the remote pattern
// store, carrying the failure category and the affected pattern.
type StoreError struct {
	Code      ErrorCode
	PatternID string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.PatternID != "" {
		return fmt.Sprintf("%s: %s (pattern=%s)", e.Code, e.Message, e.PatternID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewVersionConflict creates the conflict error returned when an update's
// expected version is stale.
func NewVersionConflict(patternID string, expected, actual int64) *StoreError {
	return &StoreError{
		Code:      CodeVersionConflict,
		PatternID: patternID,
		Message:   fmt.Sprintf("expected version %d, store has %d", expected, actual),
	}
}

// NewNotFound creates the error for a missing pattern.
func NewNotFound(patternID string) *StoreError {
	return &StoreError{
		Code:      CodeNotFound,
		PatternID: patternID,
		Message:   "pattern not found",
	}
}

// codeOf extracts the error code, or "" for non-store errors.
func codeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsVersionConflict reports whether err is a stale-version conflict.
// Uses errors.As to handle wrapped errors.
func IsVersionConflict(err error) bool {
	return codeOf(err) == CodeVersionConflict
}

// IsNotFound reports whether err is a missing-pattern error.
func IsNotFound(err error) bool {
	return codeOf(err) == CodeNotFound
}

// IsPermissionDenied reports whether err is terminal permission failure.
func IsPermissionDenied(err error) bool {
	return codeOf(err) == CodePermissionDenied
}

// IsNetworkUnavailable reports whether err means the store was unreachable.
func IsNetworkUnavailable(err error) bool {
	return codeOf(err) == CodeNetworkUnavailable
}
