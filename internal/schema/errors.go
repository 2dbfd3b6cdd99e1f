package schema

import (
	"errors"
	"fmt"
)

// ValidationCode categorizes record-validation failures. The code plus the
// offending field name is what callers surface to end users.
type ValidationCode string

const (
	// ErrCodeNotAnObject indicates the record is not a JSON object.
	ErrCodeNotAnObject ValidationCode = "NOT_AN_OBJECT"

	// ErrCodeMissingRequiredField indicates a required field is absent.
	ErrCodeMissingRequiredField ValidationCode = "MISSING_REQUIRED_FIELD"

	// ErrCodeWrongFieldType indicates a value of the wrong kind.
	ErrCodeWrongFieldType ValidationCode = "WRONG_FIELD_TYPE"

	// ErrCodeNotURL indicates a url field that does not parse.
	ErrCodeNotURL ValidationCode = "NOT_URL"

	// ErrCodeOutOfBounds indicates a numeric value outside min/max.
	ErrCodeOutOfBounds ValidationCode = "OUT_OF_BOUNDS"

	// ErrCodeInvalidRecordSet indicates a malformed record_set value.
	ErrCodeInvalidRecordSet ValidationCode = "INVALID_RECORD_SET"

	// ErrCodeInvalidGuid indicates a malformed or missing guid value.
	ErrCodeInvalidGuid ValidationCode = "INVALID_GUID"

	// ErrCodeInvalidField is the catch-all for other per-field failures.
	ErrCodeInvalidField ValidationCode = "INVALID_FIELD"
)

// ValidationError reports that a record failed validation against a schema.
type ValidationError struct {
	Code    ValidationCode
	Field   string
	Kind    FieldKind
	Message string
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case ErrCodeNotAnObject:
		return "cannot store a non-object record"
	case ErrCodeMissingRequiredField:
		return fmt.Sprintf("the field %q is required", e.Field)
	case ErrCodeWrongFieldType:
		return fmt.Sprintf("the field %q must be of type %q", e.Field, e.Kind)
	case ErrCodeNotURL:
		return fmt.Sprintf("the field %q must parse as a valid url", e.Field)
	case ErrCodeOutOfBounds:
		return fmt.Sprintf("the field %q is out of the required bounds", e.Field)
	case ErrCodeInvalidRecordSet:
		return fmt.Sprintf("the field %q is not a valid record_set: %s", e.Field, e.Message)
	case ErrCodeInvalidGuid:
		return fmt.Sprintf("the field %q is not a valid guid", e.Field)
	default:
		return fmt.Sprintf("the field %q is invalid: %s", e.Field, e.Message)
	}
}

// IsValidation reports whether err (or anything it wraps) is a record
// ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseError reports a malformed schema document. Encountering one for a
// schema already persisted in the database is fatal to opening the store.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schema: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("invalid schema: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}
