package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Well-known metadata keys.
const (
	KeyText       = "text"
	KeySource     = "source"
	KeyDocID      = "doc_id"
	KeyChunkIndex = "chunk_index"
	KeyStartChar  = "start_char"
	KeyEndChar    = "end_char"
)

// ValueKind identifies which member of a Value is set.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a metadata value: exactly one of string, number or bool.
// The zero Value is invalid.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric Value holding n.
func Int(n int) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString returns the string member and whether v holds a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric member and whether v holds a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean member and whether v holds a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Any returns the value as a plain Go scalar (string, float64 or bool).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String renders v for display. Numbers use the shortest exact form.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	}
	return true
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("%w: zero value", ErrInvalidMetadata)
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON or YAML scalar into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(t), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
		}
		return Number(n), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidMetadata, x)
	}
}

// ParseValue interprets s as a bool or number when it parses cleanly,
// otherwise as a string. Used for key=value command-line metadata.
func ParseValue(s string) Value {
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(n)
	}
	return String(s)
}

// Metadata is an open mapping of keys to scalar values.
type Metadata map[string]Value

// MetadataFromMap converts a generic map, typically decoded JSON, into Metadata.
func MetadataFromMap(m map[string]any) (Metadata, error) {
	md := make(Metadata, len(m))
	for k, raw := range m {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		md[k] = v
	}
	return md, nil
}

func (m Metadata) stringField(key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return ""
}

// Text returns the chunk text, or "" when absent.
func (m Metadata) Text() string { return m.stringField(KeyText) }

// Source returns the caller supplied source, or "" when absent.
func (m Metadata) Source() string { return m.stringField(KeySource) }

// DocID returns the owning document id, or "" when absent.
func (m Metadata) DocID() string { return m.stringField(KeyDocID) }

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// Merge returns a new Metadata holding m overlaid with delta.
func (m Metadata) Merge(delta Metadata) Metadata {
	out := m.Clone()
	maps.Copy(out, delta)
	return out
}

// ToMap converts m to plain Go scalars.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Any()
	}
	return out
}
