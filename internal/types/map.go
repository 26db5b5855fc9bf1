// internal/types/map.go
package types

import (
	"sort"
	"strconv"
	"strings"
)

// Map is an insertion-ordered map from string keys to Values.
// It is the input context, the per-rule result map, and the Map variant of Value.
// A nil *Map behaves as an empty read-only map.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// MapFromGo converts a Go map. Keys are inserted in sorted order.
func MapFromGo(src map[string]any) (*Map, error) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMap()
	for _, k := range keys {
		v, err := FromGo(src[k])
		if err != nil {
			return nil, &InputError{Reason: "key " + strconv.Quote(k), Err: err}
		}
		m.Set(k, v)
	}
	return m, nil
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. New keys are appended; existing keys keep their position.
func (m *Map) Set(key string, v Value) {
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.vals[key]; !ok {
		return false
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Clone returns a copy of the map. Values are shared; they are immutable.
func (m *Map) Clone() *Map {
	out := &Map{
		keys: make([]string, len(m.keysOrNil())),
		vals: make(map[string]Value, m.Len()),
	}
	copy(out.keys, m.keysOrNil())
	m.Range(func(k string, v Value) bool {
		out.vals[k] = v
		return true
	})
	return out
}

func (m *Map) keysOrNil() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Merge copies every entry of other into m, later values winning.
// Callback lists under CallbacksKey are concatenated instead of replaced.
func (m *Map) Merge(other *Map) {
	other.Range(func(k string, v Value) bool {
		if k == CallbacksKey {
			for _, cb := range v.Items() {
				m.appendCallbackValue(cb)
			}
			return true
		}
		m.Set(k, v)
		return true
	})
}

// MergeResults folds maps left to right into a new Map with Merge semantics.
// Nil maps are skipped.
func MergeResults(maps ...*Map) *Map {
	out := NewMap()
	for _, m := range maps {
		out.Merge(m)
	}
	return out
}

// Equal reports whether both maps hold the same keys with Equal values.
// Key order is ignored.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	equal := true
	m.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !Equal(v, ov) {
			equal = false
		}
		return equal
	})
	return equal
}

// ToGo converts the map to map[string]any.
func (m *Map) ToGo() map[string]any {
	out := make(map[string]any, m.Len())
	m.Range(func(k string, v Value) bool {
		out[k] = v.ToGo()
		return true
	})
	return out
}

func (m *Map) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	m.Range(func(k string, v Value) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(strconv.Quote(k))
		b.WriteString(": ")
		b.WriteString(v.String())
		return true
	})
	b.WriteByte('}')
	return b.String()
}

// Callback is a named side-channel notification produced by a rule action.
type Callback struct {
	Name  string
	Value Value
}

// AppendCallback records a callback under CallbacksKey.
func (m *Map) AppendCallback(name string, v Value) {
	rec := NewMap()
	rec.Set("name", String(name))
	rec.Set("value", v)
	m.appendCallbackValue(MapOf(rec))
}

func (m *Map) appendCallbackValue(rec Value) {
	existing, _ := m.Get(CallbacksKey)
	items := make([]Value, 0, len(existing.Items())+1)
	items = append(items, existing.Items()...)
	items = append(items, rec)
	m.Set(CallbacksKey, Array(items...))
}

// Callbacks returns the recorded callbacks in order.
func (m *Map) Callbacks() []Callback {
	v, ok := m.Get(CallbacksKey)
	if !ok {
		return nil
	}
	var out []Callback
	for _, item := range v.Items() {
		rec := item.Map()
		if rec == nil {
			continue
		}
		name, _ := rec.Get("name")
		val, _ := rec.Get("value")
		s, _ := name.Str()
		out = append(out, Callback{Name: s, Value: val})
	}
	return out
}
