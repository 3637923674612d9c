package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest is a package.json document. Top-level key order is kept as read, new keys
// are appended, and nested objects are written with sorted keys.
type Manifest struct {
	keys   []string
	values map[string]any
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{values: map[string]any{}}
}

// ParseManifest parses manifest JSON. Numbers are kept as json.Number.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("failed to parse manifest: top-level value is not an object")
	}

	m := NewManifest()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to parse manifest: unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to parse manifest field %q: %w", key, err)
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}

// Name returns the "name" field.
func (m *Manifest) Name() string {
	s, _ := m.values["name"].(string)
	return s
}

// Keys returns the top-level keys in document order.
func (m *Manifest) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns a top-level field.
func (m *Manifest) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set sets a top-level field, appending the key if new.
func (m *Manifest) Set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes a top-level field.
func (m *Manifest) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Object returns a top-level object field, or nil when absent or not an object.
func (m *Manifest) Object(key string) map[string]any {
	obj, _ := m.values[key].(map[string]any)
	return obj
}

// EnsureObject returns a top-level object field, creating it when absent.
func (m *Manifest) EnsureObject(key string) map[string]any {
	if obj := m.Object(key); obj != nil {
		return obj
	}
	obj := map[string]any{}
	m.Set(key, obj)
	return obj
}

// Strings returns a top-level string array field.
func (m *Manifest) Strings(key string) []string {
	var out []string
	switch v := m.values[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]any, len(m.values)),
	}
	for k, v := range m.values {
		c.values[k] = deepCopy(v)
	}
	return c
}

// Marshal renders the manifest with two-space indentation and a trailing newline.
func (m *Manifest) Marshal() ([]byte, error) {
	if len(m.keys) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range m.keys {
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := marshalIndented(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest field %q: %w", key, err)
		}
		buf.WriteString("  ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(m.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return m.Marshal()
}

func marshalIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, item := range t {
			out[k] = item
		}
		return out
	default:
		return v
	}
}
