package storage

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes storage failures.
type ErrorCode string

const (
	// ErrCodeNameMismatch: the database belongs to a different collection
	// than the native schema declares.
	ErrCodeNameMismatch ErrorCode = "SCHEMA_NAME_MISMATCH"

	// ErrCodeBadSyncStatus: a persisted sync_status byte is out of range.
	ErrCodeBadSyncStatus ErrorCode = "BAD_SYNC_STATUS"

	// ErrCodeNoSuchRecord: no record with the given guid exists when one
	// was required.
	ErrCodeNoSuchRecord ErrorCode = "NO_SUCH_RECORD"

	// ErrCodeIDNotUnique: a record with the given guid already exists.
	ErrCodeIDNotUnique ErrorCode = "ID_NOT_UNIQUE"

	// ErrCodeDuplicate: the record collides with an existing record on the
	// schema's dedupe_on field set.
	ErrCodeDuplicate ErrorCode = "DUPLICATE"

	// ErrCodeNotYetImplemented: a schema-upgrade shape that is intentionally
	// unsupported. Callers should treat this as a bug, not retry.
	ErrCodeNotYetImplemented ErrorCode = "NOT_YET_IMPLEMENTED"

	// ErrCodeInterrupted: the operation was cancelled via an interrupt
	// handle. Safe to retry.
	ErrCodeInterrupted ErrorCode = "INTERRUPTED"

	// ErrCodeCorrupt: an internal invariant did not hold (negative change
	// counter, counter overflow, a row missing after existence was
	// confirmed). The store instance should be considered unusable.
	ErrCodeCorrupt ErrorCode = "CORRUPT"
)

// Error is the storage layer's typed failure. Guid is set for per-record
// failures.
type Error struct {
	Code    ErrorCode
	Message string
	Guid    string
}

func (e *Error) Error() string {
	if e.Guid != "" {
		return fmt.Sprintf("%s: %s (guid=%s)", e.Code, e.Message, e.Guid)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func codeIs(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNoSuchRecord reports whether err is a missing-record failure.
func IsNoSuchRecord(err error) bool { return codeIs(err, ErrCodeNoSuchRecord) }

// IsIDNotUnique reports whether err is a guid-collision failure.
func IsIDNotUnique(err error) bool { return codeIs(err, ErrCodeIDNotUnique) }

// IsDuplicate reports whether err is a dedupe-constraint failure.
func IsDuplicate(err error) bool { return codeIs(err, ErrCodeDuplicate) }

// IsInterrupted reports whether err is a cooperative-cancellation failure.
func IsInterrupted(err error) bool { return codeIs(err, ErrCodeInterrupted) }

// IsNotYetImplemented reports whether err is an unsupported-upgrade failure.
func IsNotYetImplemented(err error) bool { return codeIs(err, ErrCodeNotYetImplemented) }

// IsCorrupt reports whether err is an internal invariant violation. Callers
// should stop using the store instance after seeing one.
func IsCorrupt(err error) bool { return codeIs(err, ErrCodeCorrupt) }

func noSuchRecord(guid string) *Error {
	return &Error{Code: ErrCodeNoSuchRecord, Message: "no record with the given guid exists", Guid: guid}
}

func corruptf(format string, args ...any) *Error {
	return &Error{Code: ErrCodeCorrupt, Message: fmt.Sprintf(format, args...)}
}

func notYetImplemented(what string) *Error {
	return &Error{Code: ErrCodeNotYetImplemented, Message: what}
}
