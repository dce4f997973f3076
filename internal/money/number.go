package money

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a JSON scalar that may arrive as a number, a numeric string or null.
// Extracted invoices are untrusted, so parsing never fails: unparsable input is
// kept in Raw and rejected later by ValidateNumber.
type Number struct {
	Value float64
	Valid bool
	Raw   string
}

// N returns a valid Number holding v.
func N(v float64) Number {
	return Number{Value: v, Valid: true}
}

// Or returns the value when present and fallback otherwise.
func (n Number) Or(fallback float64) float64 {
	if n.Valid {
		return n.Value
	}
	return fallback
}

// Present reports whether the field carried anything other than null or "".
func (n Number) Present() bool {
	return n.Valid || n.Raw != ""
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			n.Raw = string(trimmed)
			return nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		n.Raw = text
		return nil
	}
	n.Value = v
	n.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		if n.Raw != "" {
			return json.Marshal(n.Raw)
		}
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// MaxAmount bounds every validated figure so that products and sums of
// validated figures stay finite.
const MaxAmount = 1e15

// ValidateNumber coerces value to a finite, non-negative float64 no larger
// than MaxAmount. Zero is rejected unless allowZero is set.
func ValidateNumber(value any, field string, allowZero bool) (float64, error) {
	var v float64
	switch t := value.(type) {
	case nil:
		return 0, Validation(field, "is required")
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int32:
		v = float64(t)
	case int64:
		v = float64(t)
	case uint:
		v = float64(t)
	case uint32:
		v = float64(t)
	case uint64:
		v = float64(t)
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, Validation(field, "must be a number, got %q", t.String())
		}
		v = parsed
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0, Validation(field, "is required")
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, Validation(field, "must be a number, got %q", t)
		}
		v = parsed
	case Number:
		if !t.Valid {
			if t.Raw != "" {
				return 0, Validation(field, "must be a number, got %q", t.Raw)
			}
			return 0, Validation(field, "is required")
		}
		v = t.Value
	case *Number:
		if t == nil {
			return 0, Validation(field, "is required")
		}
		return ValidateNumber(*t, field, allowZero)
	default:
		return 0, Validation(field, "must be a number, got %T", value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, Validation(field, "must be a finite number")
	}
	if v < 0 {
		return 0, Validation(field, "cannot be negative")
	}
	if v > MaxAmount {
		return 0, Validation(field, "amount out of range")
	}
	if v == 0 && !allowZero {
		return 0, Validation(field, "must be greater than zero")
	}
	return v, nil
}
