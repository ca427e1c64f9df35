// Package document provides safe navigation over raw invoice documents.
//
// Invoice records arrive as deeply nested JSON whose exact shape is owned by
// the billing system that produced them. Two properties of that schema make
// plain map access unsafe: optional fields may be absent at any depth, and
// repeated sections ("...Element" nodes) may appear either as a single object
// or as a list of objects. Value wraps a decoded document and normalizes both
// cases: missing paths read as zero values and repeated sections always read
// as lists.
package document

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value is a read-only view over a decoded JSON document node. The zero
// Value behaves like a missing node: every accessor returns its zero result.
type Value struct {
	v any
}

// FromAny wraps an already-decoded JSON value (maps, slices, scalars).
func FromAny(v any) Value {
	return Value{v: v}
}

// Parse decodes a JSON document into a Value.
func Parse(data []byte) (Value, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// IsNil reports whether the node is absent.
func (v Value) IsNil() bool {
	return v.v == nil
}

// Raw returns the underlying decoded value.
func (v Value) Raw() any {
	return v.v
}

// Get navigates a chain of object keys. A missing key at any depth yields
// the zero Value. When an intermediate node is a list, navigation continues
// through its first element, which normalizes the schema's single-object
// versus one-element-list variance for scalar reads.
func (v Value) Get(path ...string) Value {
	cur := v.v
	for _, key := range path {
		if list, ok := cur.([]any); ok {
			if len(list) == 0 {
				return Value{}
			}
			cur = list[0]
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return Value{}
		}
		cur, ok = m[key]
		if !ok {
			return Value{}
		}
	}
	return Value{v: cur}
}

// List returns the node as a list of Values. A single object becomes a
// one-element list, an absent node an empty one.
func (v Value) List() []Value {
	switch t := v.v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Value{v: e}
		}
		return out
	default:
		return []Value{{v: t}}
	}
}

// String returns the node as a string, or "" for absent or non-string nodes.
// Numbers are formatted to preserve documents that store identifiers as
// numeric literals.
func (v Value) String() string {
	switch t := v.v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Float returns the node as a float64, defaulting to zero. String values are
// parsed, accepting the German decimal comma.
func (v Value) Float() float64 {
	switch t := v.v.(type) {
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		// German documents use "1234,56"; thousands separators are rare in
		// the schema but stripped when the comma marks the decimals.
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// FloatField is shorthand for Get(path...).Float().
func (v Value) FloatField(path ...string) float64 {
	return v.Get(path...).Float()
}

// StringField is shorthand for Get(path...).String().
func (v Value) StringField(path ...string) string {
	return v.Get(path...).String()
}
