// Package convert provides the loosely-typed-to-scalar conversions the
// value layer and expression evaluator share: literal payloads arrive from
// the lexer as untyped Go values, and attribute columns want a concrete
// int64/float64/string. Every function returns a success flag instead of
// an error so callers can fall back without unwrapping.
package convert

import "strconv"

// ToFloat64 converts any numeric Go value, or a numeric string, to float64.
// Strings parse with full strconv semantics (scientific notation, NaN,
// Inf). Returns (0, false) when the value has no numeric reading.
func ToFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToInt64 converts any numeric Go value, or a numeric string, to int64.
// Floats truncate toward zero; a string that fails integer parsing is
// retried as a float before giving up.
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
