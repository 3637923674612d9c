package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writePolicyFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "no-dist.rego")
	regoContent := `# Generated files must not be written into dist.
# Build output belongs to the build.

package sous.policies.dist

import rego.v1

deny contains "dist is build output" if {
	startswith(input.files[_].path, "dist/")
}
`
	writePolicyFile(t, policyFile, regoContent)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-dist" {
		t.Errorf("Expected name 'no-dist', got '%s'", policy.Name)
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
	if policy.Description != "Generated files must not be written into dist. Build output belongs to the build." {
		t.Errorf("Unexpected description: %q", policy.Description)
	}
	if policy.Metadata["source"] != policyFile {
		t.Errorf("Expected source metadata, got %v", policy.Metadata)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policy := Policy{
		Name:        "json-policy",
		Description: "A test policy",
		Rego:        "package test\n\nimport rego.v1\n\ndeny contains \"x\" if false\n",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"test"},
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	policyFile := filepath.Join(t.TempDir(), "whatever.json")
	writePolicyFile(t, policyFile, string(data))

	loaded, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != policy.Name {
		t.Errorf("Expected name '%s', got '%s'", policy.Name, loaded.Name)
	}
	if loaded.Severity != policy.Severity {
		t.Errorf("Expected severity '%s', got '%s'", policy.Severity, loaded.Severity)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "unsupported type", file: "policy.txt", content: "package x"},
		{name: "invalid json", file: "bad.json", content: "{not json"},
		{name: "json without name", file: "anon.json", content: `{"rego": "package x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writePolicyFile(t, path, tt.content)
			if _, err := loader.loadFromFile(path); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	writePolicyFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writePolicyFile(t, filepath.Join(dir, "nested", "deeper", "b.rego"), "package b\n")
	writePolicyFile(t, filepath.Join(dir, "c.json"), `{"name": "c", "rego": "package c"}`)
	writePolicyFile(t, filepath.Join(dir, "README.md"), "# not a policy")
	writePolicyFile(t, filepath.Join(dir, "broken.json"), "{")

	loaded, err := loader.loadFromDirectory(dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	names := map[string]bool{}
	for _, p := range loaded {
		names[p.Name] = true
	}
	if len(loaded) != 3 || !names["a"] || !names["b"] || !names["c"] {
		t.Errorf("Expected policies a, b and c, got %v", names)
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	single := filepath.Join(dir, "single.rego")
	writePolicyFile(t, single, "package single\n")
	writePolicyFile(t, filepath.Join(dir, "more", "one.rego"), "package one\n")

	loaded, err := loader.LoadFromPaths(context.Background(), []string{single, filepath.Join(dir, "more")})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for a missing path")
	}
}

func TestIsPolicyFile(t *testing.T) {
	tests := map[string]bool{
		"x.rego":      true,
		"dir/x.json":  true,
		"x.rego.swp":  false,
		"package.yml": false,
	}
	for path, want := range tests {
		if got := IsPolicyFile(path); got != want {
			t.Errorf("IsPolicyFile(%s) = %v, want %v", path, got, want)
		}
	}
}
