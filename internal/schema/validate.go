package schema

import (
	"fmt"
	"math"
	"net/url"

	"golang.org/x/text/unicode/norm"
)

// validateValue checks a single value against a field's declared type and
// bounds, returning the value in the shape that should be stored.
//
// JSON decoding hands us float64 for every number; integer and timestamp
// fields accept those only when they carry an integral value.
func validateValue(f *Field, val any) (any, error) {
	switch f.Type {
	case KindOwnGuid:
		return validateGuid(f.Name, val)

	case KindText:
		s, ok := val.(string)
		if !ok {
			return nil, wrongType(f)
		}
		// NFC so that equal-looking strings compare equal in dedupe keys.
		return norm.NFC.String(s), nil

	case KindURL:
		s, ok := val.(string)
		if !ok {
			return nil, wrongType(f)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return nil, &ValidationError{Code: ErrCodeNotURL, Field: f.Name}
		}
		return u.String(), nil

	case KindInteger, KindTimestamp:
		n, ok := asInteger(val)
		if !ok {
			return nil, wrongType(f)
		}
		if f.Type == KindTimestamp && n < 0 {
			return nil, &ValidationError{Code: ErrCodeOutOfBounds, Field: f.Name}
		}
		if err := checkBounds(f, float64(n)); err != nil {
			return nil, err
		}
		return n, nil

	case KindReal:
		n, ok := asFloat(val)
		if !ok {
			return nil, wrongType(f)
		}
		if err := checkBounds(f, n); err != nil {
			return nil, err
		}
		return n, nil

	case KindBoolean:
		b, ok := val.(bool)
		if !ok {
			return nil, wrongType(f)
		}
		return b, nil

	case KindUntypedMap:
		m, ok := val.(map[string]any)
		if !ok {
			return nil, wrongType(f)
		}
		return m, nil

	case KindRecordSet:
		return validateRecordSet(f, val)
	}
	return nil, &ValidationError{
		Code: ErrCodeInvalidField, Field: f.Name,
		Message: fmt.Sprintf("unknown field kind %q", f.Type),
	}
}

// validateGuid accepts any non-empty string without whitespace or control
// characters. Guids minted here are UUIDs, but guids authored by other
// remerge clients only promise printable-and-non-empty.
func validateGuid(field string, val any) (string, error) {
	s, ok := val.(string)
	if !ok || s == "" || len(s) > 64 {
		return "", &ValidationError{Code: ErrCodeInvalidGuid, Field: field}
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return "", &ValidationError{Code: ErrCodeInvalidGuid, Field: field}
		}
	}
	return s, nil
}

func validateRecordSet(f *Field, val any) (any, error) {
	items, ok := val.([]any)
	if !ok {
		return nil, wrongType(f)
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, recordSetErr(f, "entry %d is not an object", i)
		}
		id, ok := m[f.IDKey].(string)
		if !ok || id == "" {
			return nil, recordSetErr(f, "entry %d is missing id key %q", i, f.IDKey)
		}
		if seen[id] {
			return nil, recordSetErr(f, "duplicate id %q", id)
		}
		seen[id] = true
	}
	return items, nil
}

func checkBounds(f *Field, n float64) error {
	if f.Min != nil && n < *f.Min {
		return &ValidationError{Code: ErrCodeOutOfBounds, Field: f.Name}
	}
	if f.Max != nil && n > *f.Max {
		return &ValidationError{Code: ErrCodeOutOfBounds, Field: f.Name}
	}
	return nil
}

func wrongType(f *Field) error {
	return &ValidationError{Code: ErrCodeWrongFieldType, Field: f.Name, Kind: f.Type}
}

func recordSetErr(f *Field, format string, args ...any) error {
	return &ValidationError{
		Code: ErrCodeInvalidRecordSet, Field: f.Name,
		Message: fmt.Sprintf(format, args...),
	}
}

func asInteger(val any) (int64, bool) {
	switch n := val.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
