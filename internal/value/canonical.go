package value

import (
	"bytes"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Canonical re-encodes an arbitrary JSON document in canonical form:
// object keys sorted, strings NFC normalized, no insignificant whitespace,
// no HTML escaping. Two documents that differ only in formatting or key
// order produce identical bytes.
func Canonical(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	return MarshalCanonical(v)
}

// MarshalCanonical encodes v in canonical form. See Canonical.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case String:
		b, err := marshalString(norm.NFC.String(string(val)))
		if err != nil {
			return err
		}
		buf.Write(b)
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		// Keys are normalized before sorting so that NFC-equivalent keys order
		// the same way regardless of their input form.
		normalized := make(Map, len(val))
		for k, elem := range val {
			normalized[norm.NFC.String(k)] = elem
		}
		buf.WriteByte('{')
		for i, k := range normalized.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, normalized[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		b, err := Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
