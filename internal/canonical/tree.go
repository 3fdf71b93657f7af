// Package canonical holds the wire-format independent metadata tree.
//
// Both JSON and XML responses are converted into the same shape: *Map for
// objects (keys keep their order), List for sequences, and string,
// json.Number, bool or nil for scalars. XML attributes become keys with an
// "@" prefix and element text sitting beside attributes lives under "#text".
// Trees have no exported mutators and are never changed after parsing.
package canonical

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	// AttrPrefix marks keys that came from XML attributes.
	AttrPrefix = "@"
	// TextKey holds element text when the element also has attributes.
	TextKey = "#text"
)

// Map is an ordered string-keyed object.
type Map struct {
	keys   []string
	values map[string]any
}

// List is an ordered sequence of tree values.
type List []any

func newMap(capacity int) *Map {
	return &Map{
		keys:   make([]string, 0, capacity),
		values: make(map[string]any, capacity),
	}
}

// set keeps the first position of a duplicated key and the last value.
func (m *Map) set(key string, value any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, value any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Equal reports whether two maps hold the same keys, order and values.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if other.keys[i] != k || !Equal(m.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the map with its keys in order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Equal compares two tree values structurally.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case *Map:
		bv, ok := b.(*Map)
		return ok && av.Equal(bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// AsList resolves the single-vs-sequence ambiguity of repeated elements:
// nil is empty, a List is returned as is, anything else is wrapped.
func AsList(v any) List {
	switch t := v.(type) {
	case nil:
		return nil
	case List:
		return t
	default:
		return List{t}
	}
}

// String renders a scalar as text. A Map yields its "#text" value, so an
// XML element with attributes reads the same as a plain element.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case *Map:
		if text, ok := t.Get(TextKey); ok {
			return String(text)
		}
	}
	return "", false
}

// NonEmptyString is String that also rejects blank text.
func NonEmptyString(v any) (string, bool) {
	s, ok := String(v)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// IsScalar reports whether v is a leaf value.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, json.Number, bool, nil:
		return true
	}
	return false
}
