// Package errors consolidates error definitions for the entire project.
//
// It provides:
// - Wire error codes used by the HTTP API
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToCode mapping
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Wire error codes - carried in HTTP error responses
// ============================================================================

const (
	CodeUnknown            int32 = 1
	CodeInvalidParameter   int32 = 2
	CodeInvalidType        int32 = 3
	CodeDuplicateID        int32 = 4
	CodeWALWriteFailed     int32 = 5
	CodeDataIntegrity      int32 = 6
	CodeTenantNotFound     int32 = 7
	CodeLockHeld           int32 = 8
	CodePersistenceFailed  int32 = 9
	CodeSnapshotFailed     int32 = 10
	CodeArchiveFailed      int32 = 11
	CodeInternal           int32 = 12
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidParameter:
		return "InvalidParameter"
	case CodeInvalidType:
		return "InvalidTransactionType"
	case CodeDuplicateID:
		return "DuplicateTransactionId"
	case CodeWALWriteFailed:
		return "WalWriteFailed"
	case CodeDataIntegrity:
		return "DataIntegrity"
	case CodeTenantNotFound:
		return "TenantNotFound"
	case CodeLockHeld:
		return "LockHeld"
	case CodePersistenceFailed:
		return "PersistenceFailed"
	case CodeSnapshotFailed:
		return "SnapshotFailed"
	case CodeArchiveFailed:
		return "ArchiveFailed"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrInvalidTransactionType = errors.New("transaction type must be 'in' or 'out'")
	ErrDuplicateTransactionID = errors.New("transaction ID already exists")

	// Durability errors
	ErrWALWriteFailed = errors.New("failed to write transaction to WAL")

	// Recovery/integrity errors
	ErrDataIntegrity = errors.New("data integrity validation failed")
	ErrMalformedLine = errors.New("malformed WAL line")

	// Persistence lifecycle errors
	ErrLockHeld          = errors.New("data directory is locked by another process")
	ErrPersistenceClosed = errors.New("persistence manager is closed")
	ErrSnapshotFailed    = errors.New("snapshot creation failed")
	ErrArchiveFailed     = errors.New("archive pass failed")

	// Query errors
	ErrTenantNotFound = errors.New("tenant not found")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsValidation returns true if err is a validation error.
// Validation errors are returned synchronously and have no side effect.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidTransactionType) ||
		errors.Is(err, ErrDuplicateTransactionID)
}

// IsDurability returns true if err is a durability error.
// Durability errors abort the in-flight append before any memory mutation.
func IsDurability(err error) bool {
	return errors.Is(err, ErrWALWriteFailed)
}

// IsIntegrity returns true if err is a recovery/integrity error.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity) ||
		errors.Is(err, ErrMalformedLine)
}

// ============================================================================
// Error to wire code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its wire code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrInvalidTransactionType):
		return CodeInvalidType
	case Is(err, ErrDuplicateTransactionID):
		return CodeDuplicateID
	case Is(err, ErrInvalidParameter):
		return CodeInvalidParameter
	case Is(err, ErrWALWriteFailed):
		return CodeWALWriteFailed
	case Is(err, ErrDataIntegrity), Is(err, ErrMalformedLine):
		return CodeDataIntegrity
	case Is(err, ErrTenantNotFound):
		return CodeTenantNotFound
	case Is(err, ErrLockHeld):
		return CodeLockHeld
	case Is(err, ErrSnapshotFailed):
		return CodeSnapshotFailed
	case Is(err, ErrArchiveFailed):
		return CodeArchiveFailed
	case Is(err, ErrPersistenceClosed):
		return CodePersistenceFailed
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewInvalidParameter creates an invalid-parameter error with field context.
func NewInvalidParameter(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidParameter)
}
