// Package formats converts managed file content between in-memory values and text.
//
// The codec for a file is chosen from its extension. JSON, YAML and TOML files hold
// structured values (maps, slices, scalars); every other file is plain text.
package formats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Codec stringifies and parses file content.
type Codec interface {
	// Name returns the codec name.
	Name() string

	// Stringify renders a value as file content.
	Stringify(v any) (string, error)

	// Parse reads file content into a value.
	Parse(s string) (any, error)
}

var (
	// JSON encodes with two-space indentation and no HTML escaping.
	JSON Codec = jsonCodec{}

	// YAML encodes with two-space indentation.
	YAML Codec = yamlCodec{}

	// TOML encodes tables with the BurntSushi encoder.
	TOML Codec = tomlCodec{}

	// Text passes strings through unchanged.
	Text Codec = textCodec{}
)

// ForPath returns the codec for a file path.
func ForPath(p string) Codec {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return JSON
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	default:
		return Text
	}
}

// ByName returns a codec by name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "text", "":
		return Text, nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Stringify(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode json: %w", err)
	}
	return buf.String(), nil
}

func (jsonCodec) Parse(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	return v, nil
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Stringify(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.String(), nil
}

func (yamlCodec) Parse(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return v, nil
}

type tomlCodec struct{}

func (tomlCodec) Name() string { return "toml" }

func (tomlCodec) Stringify(v any) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode toml: %w", err)
	}
	return buf.String(), nil
}

func (tomlCodec) Parse(s string) (any, error) {
	v := map[string]any{}
	if _, err := toml.Decode(s, &v); err != nil {
		return nil, fmt.Errorf("failed to parse toml: %w", err)
	}
	return v, nil
}

type textCodec struct{}

func (textCodec) Name() string { return "text" }

func (textCodec) Stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case []string:
		return strings.Join(t, "\n") + "\n", nil
	case fmt.Stringer:
		return t.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("text content must be a string, got %T", v)
	}
}

func (textCodec) Parse(s string) (any, error) {
	return s, nil
}
