// internal/types/json.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

/*
 * Order-preserving JSON encoding for Value and Map.
 *
 * encoding/json decodes objects into Go maps, which loses key order. Action
 * order is significant for rules, so objects are decoded token by token into
 * Map. Integral numbers decode as Int, everything else numeric as Float.
 * Floats always encode with a fraction or exponent so the kind survives.
 *
 * Non-finite floats have no JSON form and encode as the strings "NaN",
 * "+Inf" and "-Inf".
 */

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// MarshalJSON implements json.Marshaler. Keys are written in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMap(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. The input must be a JSON object.
func (m *Map) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() != KindMap {
		return fmt.Errorf("%w: expected JSON object, got %s", ErrCoercionFailed, v.Kind())
	}
	*m = *v.Map()
	return nil
}

// ParseMapJSON decodes a JSON object into a Map preserving key order.
func ParseMapJSON(data []byte) (*Map, error) {
	m := NewMap()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, fmt.Errorf("key %q: %w", key, err)
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return MapOf(m), nil
		case '[':
			items := []Value{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, fmt.Errorf("index %d: %w", len(items), err)
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func writeValue(w *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		w.WriteString("null")
	case KindBool:
		w.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		w.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		switch {
		case math.IsNaN(v.f):
			w.WriteString(`"NaN"`)
		case math.IsInf(v.f, 1):
			w.WriteString(`"+Inf"`)
		case math.IsInf(v.f, -1):
			w.WriteString(`"-Inf"`)
		default:
			w.WriteString(jsonFloat(v.f))
		}
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		w.Write(b)
	case KindArray:
		w.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeValue(w, item); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	case KindMap:
		return writeMap(w, v.m)
	default:
		return fmt.Errorf("cannot encode %s", v.kind)
	}
	return nil
}

// jsonFloat formats a finite float so it decodes back as a Float: integral
// values keep a ".0" suffix.
func jsonFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func writeMap(w *bytes.Buffer, m *Map) error {
	w.WriteByte('{')
	var err error
	i := 0
	m.Range(func(k string, v Value) bool {
		if i > 0 {
			w.WriteByte(',')
		}
		i++
		kb, kerr := json.Marshal(k)
		if kerr != nil {
			err = kerr
			return false
		}
		w.Write(kb)
		w.WriteByte(':')
		if err = writeValue(w, v); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	w.WriteByte('}')
	return nil
}

// WriteIndentedJSON writes m as indented JSON, keeping key order.
func WriteIndentedJSON(w io.Writer, m *Map) error {
	raw, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}
