package values

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Kind is the scalar type tag of a Value: String, Int, Float, Bool,
// Timestamp, ID, Hash, plus Null for nullable attributes holding no value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTimestamp
	KindID
	KindHash
)

// String renders a Kind's DSL spelling, used in error messages and in the
// Layer-0 self-description's _AttributeDef.scalar_type field.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindTimestamp:
		return "Timestamp"
	case KindID:
		return "ID"
	case KindHash:
		return "Hash"
	default:
		return "Unknown"
	}
}

// Value is a tagged-union scalar, the unit of data MEW ever stores in an
// attribute column, binds in a pattern, or returns from a query. Every
// variant is an explicit field rather than an interface{}; construction
// goes through the New* constructors so only one field is ever meaningful
// for a given Kind.
type Value struct {
	kind Kind
	str  string
	i64  int64
	f64  float64
	b    bool
	ts   time.Time
	id   GlyphId
	hash [32]byte
}

// Null is the single shared NULL value.
var Null = Value{kind: KindNull}

func NewString(s string) Value { return Value{kind: KindString, str: s} }
func NewInt(i int64) Value     { return Value{kind: KindInt, i64: i} }
func NewFloat(f float64) Value { return Value{kind: KindFloat, f64: f} }
func NewBool(b bool) Value     { return Value{kind: KindBool, b: b} }
func NewTimestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, ts: t.UTC()}
}
func NewID(id GlyphId) Value { return Value{kind: KindID, id: id} }

// NewHash computes the Hash-typed value of b as a blake2b-256 digest.
func NewHash(b []byte) Value {
	return Value{kind: KindHash, hash: blake2b.Sum256(b)}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsString() string { return v.str }
func (v Value) AsInt() int64     { return v.i64 }
func (v Value) AsFloat() float64 { return v.f64 }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsTimestamp() time.Time { return v.ts }
func (v Value) AsID() GlyphId     { return v.id }
func (v Value) AsHashBytes() []byte {
	h := make([]byte, len(v.hash))
	copy(h, v.hash[:])
	return h
}

// Equal implements value equality, NULL-aware: NULL never equals anything,
// including NULL itself, matching SQL/Cypher NULL semantics that MEW's
// constraint and WHERE evaluation rely on.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.i64 == o.i64
	case KindFloat:
		return v.f64 == o.f64
	case KindBool:
		return v.b == o.b
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindID:
		return v.id == o.id
	case KindHash:
		return v.hash == o.hash
	default:
		return false
	}
}

// Compare orders two non-NULL values of the same Kind for index traversal
// and ORDER BY. Returns -1/0/1. Comparing across Kinds or involving NULL is
// a programming error in the caller (pattern/query layers only ever compare
// within a single attribute's declared Kind) and returns 0. Hash values have
// no order and also compare as 0.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		return 0
	}
	switch v.kind {
	case KindString:
		return cmpString(v.str, o.str)
	case KindInt:
		return cmpInt(v.i64, o.i64)
	case KindFloat:
		return cmpFloat(v.f64, o.f64)
	case KindBool:
		return cmpBool(v.b, o.b)
	case KindTimestamp:
		if v.ts.Before(o.ts) {
			return -1
		}
		if v.ts.After(o.ts) {
			return 1
		}
		return 0
	case KindID:
		return cmpUint64(uint64(v.id), uint64(o.id))
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
func cmpInt(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
func cmpFloat(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
func cmpUint64(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// HashScalar computes a fast, non-cryptographic hash of a Value for use as
// a hash-join / GROUP BY / FamilyTable-index bucket key. It is distinct
// from the Hash scalar Kind (a user-visible content digest); HashScalar is
// purely an internal performance primitive.
func HashScalar(v Value) uint64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindString:
		return xxhash.Sum64String(v.str)
	case KindInt:
		return xxhash.Sum64(int64Bytes(v.i64))
	case KindFloat:
		return xxhash.Sum64(int64Bytes(int64(v.f64 * 1e9)))
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindTimestamp:
		return xxhash.Sum64(int64Bytes(v.ts.UnixNano()))
	case KindID:
		return xxhash.Sum64(int64Bytes(int64(v.id)))
	case KindHash:
		return xxhash.Sum64(v.hash[:])
	default:
		return 0
	}
}

func int64Bytes(i int64) []byte {
	var b [8]byte
	u := uint64(i)
	for n := 0; n < 8; n++ {
		b[n] = byte(u >> (8 * n))
	}
	return b[:]
}

// String renders a Value for diagnostics, EXPLAIN output, and error hints.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindInt:
		return fmt.Sprintf("%d", v.i64)
	case KindFloat:
		return fmt.Sprintf("%g", v.f64)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case KindID:
		return v.id.String()
	case KindHash:
		return fmt.Sprintf("%x", v.hash)
	default:
		return "<invalid>"
	}
}
