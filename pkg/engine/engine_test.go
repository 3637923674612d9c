package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// Mock implementations for testing

type mockRegistry struct {
	mu       sync.Mutex
	versions map[string]string
	calls    int
}

func (m *mockRegistry) Resolve(ctx context.Context, name, spec string) (*Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	v, ok := m.versions[name]
	if !ok {
		return nil, NewResolutionError("package not found", nil).WithCode(ErrCodeNotFound)
	}
	return &Resolution{Name: name, Version: v}, nil
}

type mockPrompter struct {
	answer bool
	asked  []string
}

func (m *mockPrompter) Confirm(ctx context.Context, path, diff string) (bool, error) {
	m.asked = append(m.asked, path)
	return m.answer, nil
}

type mockReporter struct {
	NopReporter
	mu       sync.Mutex
	phases   []string
	features []string
	files    []FileOperation
	deps     []DependencyOperation
	summary  *Summary
}

func (m *mockReporter) PhaseStart(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}

func (m *mockReporter) FeatureStart(feature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = append(m.features, feature)
}

func (m *mockReporter) FileOperation(op FileOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, op)
}

func (m *mockReporter) DependencyOperation(op DependencyOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps = append(m.deps, op)
}

func (m *mockReporter) Summary(s *Summary) {
	m.summary = s
}

// countingFS counts writes and removals going to disk.
type countingFS struct {
	OSFS
	mu      sync.Mutex
	writes  []string
	removes []string
}

func (c *countingFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	c.mu.Lock()
	c.writes = append(c.writes, path)
	c.mu.Unlock()
	return c.OSFS.WriteFile(path, data, perm)
}

func (c *countingFS) Symlink(oldname, newname string) error {
	c.mu.Lock()
	c.writes = append(c.writes, newname)
	c.mu.Unlock()
	return c.OSFS.Symlink(oldname, newname)
}

func (c *countingFS) Remove(path string) error {
	c.mu.Lock()
	c.removes = append(c.removes, path)
	c.mu.Unlock()
	return c.OSFS.Remove(path)
}

func (c *countingFS) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
	c.removes = nil
}

// writeFile writes a file below dir, creating parents.
func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// newTestWorkspace creates a root package and one member package "packages/app".
func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name": "root", "private": true}`+"\n")
	writeFile(t, dir, "packages/app/package.json", `{"name": "@acme/app", "version": "1.0.0"}`+"\n")
	return loadTestWorkspace(t, dir)
}

func loadTestWorkspace(t *testing.T, dir string) *Workspace {
	t.Helper()
	ws := &Workspace{Dir: dir}
	ws.Packages = append(ws.Packages, LoadPackageEntry(OSFS{}, PackageKindWorkspace, dir, "."))
	app := filepath.Join(dir, "packages", "app")
	if _, err := os.Stat(app); err == nil {
		ws.Packages = append(ws.Packages, LoadPackageEntry(OSFS{}, PackageKindPackage, app, "packages/app"))
	}
	return ws
}

func readManifest(t *testing.T, dir, rel string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(readFile(t, dir, rel)), &m); err != nil {
		t.Fatalf("parse %s: %v", rel, err)
	}
	return m
}

func newTestEngine(opts Options) *Engine {
	opts.Logger = zerolog.Nop()
	return New(opts)
}

func generateFeature(name, path string, content any) Feature {
	return Feature{
		Name: name,
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.GenerateFile(nil, path, FileSpec{Content: content})
		},
	}
}

func TestRunGeneratesFileAndIsIdempotent(t *testing.T) {
	ws := newTestWorkspace(t)
	fsys := &countingFS{}
	e := newTestEngine(Options{FS: fsys})
	features := []Feature{generateFeature("config", "x.json", map[string]any{"a": 1})}

	summary, err := e.Run(context.Background(), ws, features)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, ws.Dir, "x.json"); got != "{\n  \"a\": 1\n}\n" {
		t.Errorf("x.json = %q", got)
	}
	if summary.FilesChanged != 1 {
		t.Errorf("FilesChanged = %d, want 1", summary.FilesChanged)
	}

	fsys.reset()
	ws = loadTestWorkspace(t, ws.Dir)
	summary, err = e.Run(context.Background(), ws, features)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.FilesChanged != 0 || summary.DependenciesChanged != 0 {
		t.Errorf("second run changed files=%d deps=%d", summary.FilesChanged, summary.DependenciesChanged)
	}
	for _, w := range fsys.writes {
		if !strings.HasSuffix(w, filepath.FromSlash(CacheFile)) {
			t.Errorf("second run wrote %s", w)
		}
	}
	if summary.Dirty {
		t.Error("second run is dirty")
	}
}

func TestRunIgnoreFileMergesAttributes(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	features := []Feature{
		{
			Name: "vcs",
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				return r.IgnoreFile(nil, "y.txt", Attributes{IgnoreVCS: true, Labels: map[string]string{"owner": "vcs"}})
			},
		},
		{
			Name: "publish",
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				return r.IgnoreFile(nil, "y.txt", Attributes{IgnorePublish: true, Labels: map[string]string{"tier": "build"}})
			},
		},
	}

	plan, err := e.Plan(context.Background(), ws, features)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	info, ok := plan.State.File("y.txt")
	if !ok {
		t.Fatal("y.txt not in view")
	}
	if !info.Attributes.IgnoreVCS || !info.Attributes.IgnorePublish {
		t.Errorf("attributes not merged: %+v", info.Attributes)
	}
	if info.Attributes.Labels["owner"] != "vcs" || info.Attributes.Labels["tier"] != "build" {
		t.Errorf("labels not merged: %v", info.Attributes.Labels)
	}

	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Dir, "y.txt")); !os.IsNotExist(err) {
		t.Errorf("y.txt should not be written, stat err = %v", err)
	}
}

func TestRunLeavesHandEditedFileUntouched(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "eslint",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			for _, p := range r.Packages() {
				if p.Kind != PackageKindPackage {
					continue
				}
				if err := r.GenerateFile(p, "eslint.config.js", FileSpec{Content: "export default [];\n"}); err != nil {
					return err
				}
			}
			return nil
		},
	}}

	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	edited := "export default [{ rules: { semi: 'off' } }];\n"
	writeFile(t, ws.Dir, "packages/app/eslint.config.js", edited)

	summary, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), features)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, ws.Dir, "packages/app/eslint.config.js"); got != edited {
		t.Errorf("hand-edited file was overwritten: %q", got)
	}
	if !summary.Dirty {
		t.Error("run should be dirty")
	}
	if len(summary.NeedsReview) != 1 || summary.NeedsReview[0] != "packages/app/eslint.config.js" {
		t.Errorf("NeedsReview = %v", summary.NeedsReview)
	}

	// The run stays dirty until the conflict is resolved.
	summary, _ = e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), features)
	if !summary.Dirty {
		t.Error("third run should still be dirty")
	}
}

func TestRunOverwritesOwnOutput(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	if _, err := e.Run(context.Background(), ws, []Feature{generateFeature("f", "a.txt", "one\n")}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	summary, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), []Feature{generateFeature("f", "a.txt", "two\n")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, ws.Dir, "a.txt"); got != "two\n" {
		t.Errorf("a.txt = %q, want updated content", got)
	}
	if summary.Dirty {
		t.Error("updating own output must not need review")
	}
}

func TestRunInteractiveConflict(t *testing.T) {
	tests := []struct {
		name   string
		answer bool
		want   string
		dirty  bool
	}{
		{"accepted", true, "generated\n", false},
		{"declined", false, "mine\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWorkspace(t)
			writeFile(t, ws.Dir, "a.txt", "mine\n")

			prompter := &mockPrompter{answer: tt.answer}
			e := newTestEngine(Options{Interactive: true, Prompter: prompter})
			summary, err := e.Run(context.Background(), ws, []Feature{generateFeature("f", "a.txt", "generated\n")})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(prompter.asked) != 1 || prompter.asked[0] != "a.txt" {
				t.Errorf("asked = %v", prompter.asked)
			}
			if got := readFile(t, ws.Dir, "a.txt"); got != tt.want {
				t.Errorf("a.txt = %q, want %q", got, tt.want)
			}
			if summary.Dirty != tt.dirty {
				t.Errorf("Dirty = %v, want %v", summary.Dirty, tt.dirty)
			}
		})
	}
}

func TestRunThrowOnManualChanges(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, "a.txt", "mine\n")

	e := newTestEngine(Options{ThrowOnManualChanges: true, Interactive: true, Prompter: &mockPrompter{answer: true}})
	summary, err := e.Run(context.Background(), ws, []Feature{generateFeature("f", "a.txt", "generated\n")})
	if !IsConflict(err) {
		t.Fatalf("Run() error = %v, want conflict", err)
	}
	if summary == nil || !summary.Dirty {
		t.Error("expected dirty summary")
	}
	if got := readFile(t, ws.Dir, "a.txt"); got != "mine\n" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestRunAlwaysOverwrite(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, "a.txt", "mine\n")

	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "f",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.GenerateFile(nil, "a.txt", FileSpec{
				Content:    "generated\n",
				Attributes: Attributes{AlwaysOverwrite: true},
			})
		},
	}}
	summary, err := e.Run(context.Background(), ws, features)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, ws.Dir, "a.txt"); got != "generated\n" {
		t.Errorf("a.txt = %q", got)
	}
	if summary.Dirty {
		t.Error("AlwaysOverwrite must not need review")
	}
}

func TestRunLayerOrdering(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	appendLayer := func(s string) ContentFunc {
		return func(ctx context.Context, current any) (any, error) {
			return current.(string) + s, nil
		}
	}
	features := []Feature{
		{
			Name: "editor",
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				return r.EditFile(nil, "notes.txt", Layer{Fn: appendLayer("B")})
			},
		},
		{
			Name: "generator",
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				if err := r.GenerateFile(nil, "notes.txt", FileSpec{Content: "start:"}); err != nil {
					return err
				}
				return r.ModifyGeneratedFile(nil, "notes.txt", Layer{Fn: appendLayer("A")})
			},
		},
	}

	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := readFile(t, ws.Dir, "notes.txt"); got != "start:AB" {
		t.Errorf("notes.txt = %q, want start:AB", got)
	}
}

func TestRunEditableOnlySeedsFromDisk(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, "settings.json", `{"editor.tabSize": 4}`)

	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "vscode",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.EditFile(nil, "settings.json", Layer{Fn: func(ctx context.Context, current any) (any, error) {
				m := current.(map[string]any)
				m["files.eol"] = "\n"
				return m, nil
			}})
		},
	}}

	summary, err := e.Run(context.Background(), ws, features)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := readManifest(t, ws.Dir, "settings.json")
	if got["editor.tabSize"] != float64(4) || got["files.eol"] != "\n" {
		t.Errorf("settings.json = %v", got)
	}
	if summary.Dirty {
		t.Error("editable files must not need review")
	}

	// Without a file on disk and without CanCreate nothing is written.
	ws2 := newTestWorkspace(t)
	if _, err := e.Run(context.Background(), ws2, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws2.Dir, "settings.json")); !os.IsNotExist(err) {
		t.Errorf("settings.json should not be created, stat err = %v", err)
	}
}

func TestRunDeletesNoLongerGeneratedFile(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	if _, err := e.Run(context.Background(), ws, []Feature{generateFeature("f", "old.txt", "x\n")}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	summary, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), []Feature{generateFeature("f", "new.txt", "y\n")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.Dir, "old.txt")); !os.IsNotExist(err) {
		t.Errorf("old.txt should be deleted, stat err = %v", err)
	}
	if summary.FilesDeleted != 1 {
		t.Errorf("FilesDeleted = %d, want 1", summary.FilesDeleted)
	}
}

func TestRunSymlinkRetarget(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Dir, "shared/a.json", "{}\n")
	writeFile(t, ws.Dir, "shared/b.json", "{}\n")

	fsys := &countingFS{}
	e := newTestEngine(Options{FS: fsys})
	link := func(target string) []Feature {
		return []Feature{{
			Name: "tsconfig",
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				return r.Symlink(nil, "tsconfig.base.json", target, Attributes{})
			},
		}}
	}

	if _, err := e.Run(context.Background(), ws, link("shared/a.json")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	fsys.reset()
	if _, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), link("shared/b.json")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := filepath.Join(ws.Dir, "tsconfig.base.json")
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("tsconfig.base.json is not a symlink")
	}
	if target, _ := os.Readlink(path); target != "shared/b.json" {
		t.Errorf("symlink target = %q", target)
	}
	if len(fsys.removes) != 1 || fsys.removes[0] != path {
		t.Errorf("removes = %v, want the old link unlinked", fsys.removes)
	}
}

func TestRunSymlinkWithContentIsRejected(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "bad",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			if err := r.Symlink(nil, "a.json", "b.json", Attributes{}); err != nil {
				return err
			}
			return r.GenerateFile(nil, "a.json", FileSpec{Content: map[string]any{}})
		},
	}}

	summary, err := e.Run(context.Background(), ws, features)
	if !IsConfiguration(err) {
		t.Fatalf("Run() error = %v, want configuration error", err)
	}
	if summary != nil {
		t.Error("configuration errors must not produce a summary")
	}
}

func TestRunGarnishCannotGenerateFiles(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "late",
		DefineGarnish: func(ctx context.Context, r *Recipe) error {
			return r.GenerateFile(nil, "late.txt", FileSpec{Content: "x"})
		},
	}}

	_, err := e.Run(context.Background(), ws, features)
	if !IsStage(err) {
		t.Fatalf("Run() error = %v, want stage error", err)
	}
	if !strings.Contains(err.Error(), "feature=late") {
		t.Errorf("error does not name the feature: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(ws.Dir, "late.txt")); !os.IsNotExist(statErr) {
		t.Error("late.txt must not be written")
	}
}

func TestRunGarnishSeesAllTasks(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	task := func(name, cmd string) Feature {
		return Feature{
			Name: name,
			DefineRecipe: func(ctx context.Context, r *Recipe) error {
				return r.AddTask(nil, Task{Name: name, Command: cmd})
			},
		}
	}
	scripts := Feature{
		Name: "scripts",
		DefineGarnish: func(ctx context.Context, r *Recipe) error {
			tasks := r.View().Tasks()
			return r.ModifyManifest(nil, func(ctx context.Context, m *Manifest) error {
				obj := m.EnsureObject("scripts")
				for _, tk := range tasks {
					obj[tk.Name] = tk.Command
				}
				return nil
			})
		},
	}

	features := []Feature{scripts, task("lint", "eslint ."), task("test", "vitest run")}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, ws.Dir, "package.json")
	s, _ := m["scripts"].(map[string]any)
	if s["lint"] != "eslint ." || s["test"] != "vitest run" {
		t.Errorf("scripts = %v", m["scripts"])
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	noop := func(name string, after ...string) Feature {
		return Feature{Name: name, After: after}
	}
	tests := []struct {
		name     string
		features []Feature
		opts     Options
		code     string
	}{
		{"duplicate", []Feature{noop("a"), noop("a")}, Options{}, ErrCodeDuplicateFeature},
		{"reserved", []Feature{noop("global")}, Options{}, ErrCodeReservedName},
		{"after violated", []Feature{noop("a", "b"), noop("b")}, Options{}, ErrCodeOrdering},
		{"cycle", []Feature{noop("a", "b"), noop("b", "a")}, Options{}, ErrCodeOrdering},
		{"name convention", []Feature{noop("a")}, Options{NameConvention: "(["}, ErrCodeNameConvention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWorkspace(t)
			fsys := &countingFS{}
			tt.opts.FS = fsys
			e := newTestEngine(tt.opts)

			summary, err := e.Run(context.Background(), ws, tt.features)
			if !IsConfiguration(err) {
				t.Fatalf("Run() error = %v, want configuration error", err)
			}
			var ee *EngineError
			if !errors.As(err, &ee) || ee.Code != tt.code {
				t.Errorf("code = %v, want %s", ee, tt.code)
			}
			if summary != nil {
				t.Error("summary must be nil")
			}
			if len(fsys.writes) != 0 {
				t.Errorf("wrote %v before failing", fsys.writes)
			}
		})
	}
}

func TestRunAfterSatisfied(t *testing.T) {
	ws := newTestWorkspace(t)
	reporter := &mockReporter{}
	e := newTestEngine(Options{Reporter: reporter})

	features := []Feature{
		{Name: "base", DefineRecipe: func(context.Context, *Recipe) error { return nil }},
		{Name: "child", After: []string{"base", "missing"}, DefineRecipe: func(context.Context, *Recipe) error { return nil }},
	}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(reporter.features, ",") != "base,child" {
		t.Errorf("feature order = %v", reporter.features)
	}
	if reporter.summary == nil {
		t.Error("summary not reported")
	}
}

func TestRunProducerErrorIsolatesFile(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})
	features := []Feature{{
		Name: "mixed",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			if err := r.GenerateFile(nil, "ok.txt", FileSpec{Content: "ok\n"}); err != nil {
				return err
			}
			return r.GenerateFile(nil, "broken.txt", FileSpec{Producer: func(context.Context, any) (any, error) {
				return nil, os.ErrPermission
			}})
		},
	}}

	summary, err := e.Run(context.Background(), ws, features)
	if err == nil {
		t.Fatal("expected producer error")
	}
	if summary == nil || !summary.Dirty {
		t.Fatal("expected a dirty summary")
	}
	if got := readFile(t, ws.Dir, "ok.txt"); got != "ok\n" {
		t.Errorf("ok.txt = %q", got)
	}
}

func TestRunKeepsOwnershipOfUnappliedFiles(t *testing.T) {
	tests := []struct {
		name        string
		interrupt   func(ws *Workspace) Feature
		interactive bool
	}{
		{
			name: "producer error",
			interrupt: func(*Workspace) Feature {
				return Feature{Name: "gen", DefineRecipe: func(ctx context.Context, r *Recipe) error {
					return r.GenerateFile(nil, "a.txt", FileSpec{Producer: func(context.Context, any) (any, error) {
						return nil, os.ErrPermission
					}})
				}}
			},
		},
		{
			name:        "declined prompt",
			interactive: true,
			interrupt: func(ws *Workspace) Feature {
				writeFile(t, ws.Dir, "a.txt", "edited\n")
				return generateFeature("gen", "a.txt", "two\n")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWorkspace(t)
			e := newTestEngine(Options{})
			if _, err := e.Run(context.Background(), ws, []Feature{generateFeature("gen", "a.txt", "one\n")}); err != nil {
				t.Fatalf("first Run() error = %v", err)
			}

			ws = loadTestWorkspace(t, ws.Dir)
			feature := tt.interrupt(ws)
			e = newTestEngine(Options{Interactive: tt.interactive, Prompter: &mockPrompter{answer: false}})
			if summary, _ := e.Run(context.Background(), ws, []Feature{feature}); summary == nil || !summary.Dirty {
				t.Fatal("expected the second run to be dirty")
			}

			if tt.interactive {
				// The user restores the engine's output by hand.
				writeFile(t, ws.Dir, "a.txt", "one\n")
			}

			e = newTestEngine(Options{})
			summary, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), []Feature{generateFeature("gen", "a.txt", "three\n")})
			if err != nil {
				t.Fatalf("third Run() error = %v", err)
			}
			if summary.Dirty || len(summary.NeedsReview) != 0 {
				t.Errorf("dirty = %v, needs review = %v, want a clean run", summary.Dirty, summary.NeedsReview)
			}
			if got := readFile(t, ws.Dir, "a.txt"); got != "three\n" {
				t.Errorf("a.txt = %q, want three", got)
			}
		})
	}
}

func TestRunScopeRootOnly(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	var seen []string
	features := []Feature{{
		Name:  "root",
		Scope: Scope{RootOnly: true},
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			for _, p := range r.Packages() {
				seen = append(seen, p.Paths.Rel)
			}
			app := ws.Package("@acme/app")
			if err := r.GenerateFile(app, "x.txt", FileSpec{Content: "x"}); err == nil {
				t.Error("expected scope error for package outside the scope")
			}
			return nil
		},
	}}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != "." {
		t.Errorf("packages = %v, want only the root", seen)
	}
}
