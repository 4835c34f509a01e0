package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a sealed interface over the shapes a profile payload may take.
// Only Null, String, Number, Bool, List, and Map implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Number represents a numeric value. Spreadsheet cells and scores arrive as
// floats, so there is a single numeric kind.
type Number float64

func (Number) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// List represents an ordered list of values.
type List []Value

func (List) value() {}

// Map represents a string-keyed mapping of values.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns the keys of m in byte order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a deep copy of m.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Map:
		return val.Clone()
	default:
		return v
	}
}

// UnmarshalJSON implements json.Unmarshaler for Map.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case Map:
		*m = val
	case Null:
		*m = nil
	default:
		return fmt.Errorf("expected object, got %s", Kind(v))
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case List:
		*l = val
	case Null:
		*l = nil
	default:
		return fmt.Errorf("expected array, got %s", Kind(v))
	}
	return nil
}

// MarshalJSON implements json.Marshaler for Map with sorted keys.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range m.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := Marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Marshal encodes v as JSON. A nil Value encodes as null.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalString(string(val))
	case Number:
		return formatNumber(float64(val))
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case List:
		return val.MarshalJSON()
	case Map:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// marshalString encodes s without HTML escaping so non-ASCII profile keys
// and values stay readable in the document.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// formatNumber renders integral values without a fractional part or exponent.
func formatNumber(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number is not finite: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(strconv.FormatInt(int64(f), 10)), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Decode parses a JSON document into a Value.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a decoded Go tree (encoding/json or yaml.v3 output) into a
// Value. Integer and float kinds all become Number.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", val, err)
		}
		return Number(f), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			converted, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(val))
		for k, elem := range val {
			converted, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			out[k] = converted
		}
		return out, nil
	case map[string]string:
		out := make(Map, len(val))
		for k, s := range val {
			out[k] = String(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MapFromAny is FromAny restricted to mappings.
func MapFromAny(v any) (Map, error) {
	converted, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	switch m := converted.(type) {
	case Map:
		return m, nil
	case Null:
		return Map{}, nil
	default:
		return nil, fmt.Errorf("expected mapping, got %s", Kind(converted))
	}
}

// RawKey holds a payload that was not an object when it was coerced to a Map.
const RawKey = "raw"

// AsMap coerces v to a Map without losing data. A list holding exactly one
// map unwraps to that map and null gives an empty map. Anything else is kept
// under RawKey.
func AsMap(v Value) Map {
	switch val := v.(type) {
	case nil, Null:
		return Map{}
	case Map:
		if val == nil {
			return Map{}
		}
		return val
	case List:
		if len(val) == 1 {
			if m, ok := val[0].(Map); ok {
				return m
			}
		}
	}
	return Map{RawKey: v}
}

// Kind names the shape of v for error messages.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Text renders scalar values as plain text. Lists and maps render as JSON.
func Text(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Number:
		b, err := formatNumber(float64(val))
		if err != nil {
			return ""
		}
		return string(b)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		b, err := Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// NotProvided is the placeholder import collaborators write for fields they
// could not extract.
const NotProvided = "未提及"

// IsEmpty reports whether v carries no information for merge purposes: null,
// an empty or "not provided" string, an empty list, or an empty map.
// Numbers and booleans always carry information.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case String:
		s := strings.TrimSpace(string(val))
		return s == "" || s == NotProvided
	case List:
		return len(val) == 0
	case Map:
		return len(val) == 0
	default:
		return false
	}
}

// MergeFrom overwrites keys of m with every non-empty value of incoming.
// Keys absent from incoming, or present with an empty value, are kept.
// The merge is per field and shallow: a nested map replaces the prior one.
func (m Map) MergeFrom(incoming Map) {
	for k, v := range incoming {
		if IsEmpty(v) {
			continue
		}
		m[k] = Clone(v)
	}
}

// Update copies every key of incoming into m, including empty values.
// Membership fields use this plain dict-update semantics.
func (m Map) Update(incoming Map) {
	for k, v := range incoming {
		m[k] = Clone(v)
	}
}
