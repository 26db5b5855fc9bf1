// internal/types/value.go
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

/*
 * Dynamic value model.
 *
 * Value is a closed tagged union: Null, Bool, Int, Float, String, Array, Map.
 * The zero Value is Null. Values are treated as immutable once built; Items()
 * and Map() expose backing storage that callers must not modify in place.
 *
 * Coercion rules:
 *   - AsNumber: Int, Float and numeric strings (trimmed) convert to float64
 *   - AsBool: Bool only, no truthiness
 *   - Equal: numeric when both sides coerce, else structural by variant
 *   - Compare: numeric when both sides coerce, else string ordering, else error
 */

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindMap:    "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a dynamically typed value flowing between rules.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	m    *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding items.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// MapOf returns a map value. A nil map becomes an empty map.
func MapOf(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Int returns the integer payload when v is an Int.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float payload when v is a Float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string payload when v is a String.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Items returns the elements when v is an Array, nil otherwise.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Map returns the map when v is a Map, nil otherwise.
func (v Value) Map() *Map {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// AsBool returns the boolean payload. Non-Bool values fail with ErrCoercionFailed.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: %s is not a bool", ErrCoercionFailed, v.kind)
	}
	return v.b, nil
}

// AsNumber converts Int, Float and numeric strings to float64.
// Empty, whitespace-only and non-finite strings fail with ErrCoercionFailed.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindInt:
		return float64(v.i), nil
	case KindFloat:
		return v.f, nil
	case KindString:
		if f, ok := parseNumber(v.s); ok {
			return f, nil
		}
		return 0, fmt.Errorf("%w: %q is not a number", ErrCoercionFailed, v.s)
	default:
		return 0, fmt.Errorf("%w: %s is not a number", ErrCoercionFailed, v.kind)
	}
}

// AsInt converts v to an int64. Floats must be integral.
func (v Value) AsInt() (int64, error) {
	if v.kind == KindInt {
		return v.i, nil
	}
	f, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrCoercionFailed, f)
	}
	return int64(f), nil
}

// ExactInt returns v as an int64 without going through float64.
// Succeeds for Int and for strings holding a base-10 integer.
func (v Value) ExactInt() (int64, bool) {
	if v.kind == KindInt {
		return v.i, true
	}
	if v.kind == KindString {
		if i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text renders v the way string concatenation sees it.
// Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return v.String()
	}
}

// String renders v for diagnostics. Strings are quoted.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		return v.m.String()
	default:
		return v.Text()
	}
}

func formatFloat(f float64) string {
	if math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal compares a and b by value. Numeric-coercible operands compare numerically,
// so Int(2), Float(2.0) and String("2") are all equal.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind
	}
	if a.kind == KindInt && b.kind == KindInt {
		return a.i == b.i
	}
	if na, err := a.AsNumber(); err == nil {
		if nb, err := b.AsNumber(); err == nil {
			return na == nb
		}
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return a.m.Equal(b.m)
	default:
		return false
	}
}

// Compare orders a against b, returning -1, 0 or 1.
// Both numeric: numeric order. Both strings: byte-wise order. Otherwise ErrCoercionFailed.
func Compare(a, b Value) (int, error) {
	if a.kind == KindInt && b.kind == KindInt {
		return cmpOrdered(a.i, b.i), nil
	}
	na, errA := a.AsNumber()
	nb, errB := b.AsNumber()
	if errA == nil && errB == nil {
		if math.IsNaN(na) || math.IsNaN(nb) {
			return 0, fmt.Errorf("%w: NaN is not ordered", ErrCoercionFailed)
		}
		return cmpOrdered(na, nb), nil
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}
	return 0, fmt.Errorf("%w: cannot order %s and %s", ErrCoercionFailed, a.kind, b.kind)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// FromGo converts a Go value into a Value.
// Supports nil, bool, integer and float kinds, string, json.Number, Value, *Map,
// and slices or string-keyed maps of those. Map keys are sorted for determinism.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Map:
		return MapOf(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromGo(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case []Value:
		return Array(t...), nil
	case map[string]any:
		m, err := MapFromGo(t)
		if err != nil {
			return Value{}, err
		}
		return MapOf(m), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

// MustFromGo is FromGo that panics on unsupported input. Intended for literals.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key type %s", ErrCoercionFailed, rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := FromGo(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m.Set(k, v)
		}
		return MapOf(m), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Invalid:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported Go type %s", ErrCoercionFailed, rv.Type())
}

// ToGo converts v into plain Go values: nil, bool, int64, float64, string,
// []any and map[string]any.
func (v Value) ToGo() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.ToGo()
		}
		return out
	case KindMap:
		return v.m.ToGo()
	default:
		return nil
	}
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid number %q", ErrCoercionFailed, n.String())
	}
	return Float(f), nil
}
