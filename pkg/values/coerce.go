package values

import (
	"time"

	"github.com/mewdb/mew/pkg/convert"
)

// FromLiteral converts a parsed-literal Go value (as produced by the lexer
// for numbers/strings/bools/timestamps) into a typed Value for the declared
// Kind. It goes through pkg/convert's numeric-coercion helpers so "123" in
// a Float column and 123 in an Int column both land correctly instead of
// every call site hand-rolling a type switch.
func FromLiteral(kind Kind, raw any) (Value, bool) {
	if raw == nil {
		return Null, true
	}
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, false
		}
		return NewString(s), true
	case KindInt:
		i, ok := convert.ToInt64(raw)
		if !ok {
			return Value{}, false
		}
		return NewInt(i), true
	case KindFloat:
		f, ok := convert.ToFloat64(raw)
		if !ok {
			return Value{}, false
		}
		return NewFloat(f), true
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, false
		}
		return NewBool(b), true
	case KindTimestamp:
		switch t := raw.(type) {
		case time.Time:
			return NewTimestamp(t), true
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return Value{}, false
			}
			return NewTimestamp(parsed), true
		default:
			return Value{}, false
		}
	case KindID:
		id, ok := raw.(GlyphId)
		if !ok {
			return Value{}, false
		}
		return NewID(id), true
	case KindHash:
		b, ok := raw.([]byte)
		if !ok {
			return Value{}, false
		}
		return NewHash(b), true
	default:
		return Value{}, false
	}
}
