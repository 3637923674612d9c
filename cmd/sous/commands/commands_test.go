package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/sous/pkg/stores"
	"github.com/openfroyo/sous/pkg/telemetry"
)

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

// testWorkspace creates a two package workspace with one script feature.
func testWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name": "root", "private": true, "workspaces": ["packages/*"]}`+"\n")
	writeFile(t, dir, "packages/app/package.json", `{"name": "@acme/app", "version": "1.0.0"}`+"\n")
	writeFile(t, dir, "sous.yaml", `features: [gitignore, task-scripts]
scripts: ["features/*.star"]
logging:
  level: error
`)
	writeFile(t, dir, "features/node.star", `
name = "node"

def recipe(ctx):
    ctx.generate_file(".nvmrc", "20\n")
    ctx.generate_file(".env.local", "DEBUG=1\n", ignore_vcs = True)
    ctx.add_task("lint", "eslint .", package = "@acme/app")
`)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestApply(t *testing.T) {
	dir := testWorkspace(t)

	out, err := execute(t, "apply", "--cwd", dir, "--interactive=false")
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "clean") {
		t.Errorf("expected a clean summary:\n%s", out)
	}

	if got := readFile(t, dir, ".nvmrc"); got != "20\n" {
		t.Errorf(".nvmrc = %q", got)
	}
	if got := readFile(t, dir, ".gitignore"); !strings.Contains(got, "/.env.local\n") {
		t.Errorf(".gitignore = %q", got)
	}
	var app map[string]any
	if err := json.Unmarshal([]byte(readFile(t, dir, "packages/app/package.json")), &app); err != nil {
		t.Fatalf("parse app manifest: %v", err)
	}
	if scripts, _ := app["scripts"].(map[string]any); scripts["lint"] != "eslint ." {
		t.Errorf("app scripts = %v", app["scripts"])
	}

	if _, err := os.Stat(filepath.Join(dir, ".sous", "history.db")); err != nil {
		t.Errorf("history not recorded: %v", err)
	}
}

func TestApplyDirty(t *testing.T) {
	dir := testWorkspace(t)
	if _, err := execute(t, "apply", "--cwd", dir, "--interactive=false"); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	writeFile(t, dir, ".nvmrc", "18\n")

	out, err := execute(t, "apply", "--cwd", dir, "--interactive=false")
	if !errors.Is(err, ErrDirty) {
		t.Fatalf("expected ErrDirty, got %v\n%s", err, out)
	}
	if got := readFile(t, dir, ".nvmrc"); got != "18\n" {
		t.Errorf("hand-edited file was overwritten: %q", got)
	}

	_, err = execute(t, "apply", "--cwd", dir, "--interactive=false", "--throw-on-manual-changes")
	if err == nil || errors.Is(err, ErrDirty) {
		t.Errorf("expected the run to abort, got %v", err)
	}
}

func TestPlan(t *testing.T) {
	dir := testWorkspace(t)
	dot := filepath.Join(t.TempDir(), "features.dot")

	out, err := execute(t, "plan", "--cwd", dir, "--json", "--dot", dot)
	if err != nil {
		t.Fatalf("plan failed: %v\n%s", err, out)
	}

	var view struct {
		Files []struct {
			Path string `json:"path"`
		} `json:"files"`
		Tasks []struct {
			Name string `json:"name"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("plan output is not JSON: %v\n%s", err, out)
	}
	paths := map[string]bool{}
	for _, f := range view.Files {
		paths[f.Path] = true
	}
	for _, want := range []string{".gitignore", ".nvmrc", ".env.local"} {
		if !paths[want] {
			t.Errorf("plan is missing %s: %v", want, paths)
		}
	}
	if len(view.Tasks) != 1 || view.Tasks[0].Name != "lint" {
		t.Errorf("tasks = %+v", view.Tasks)
	}

	if _, err := os.Stat(filepath.Join(dir, ".nvmrc")); !os.IsNotExist(err) {
		t.Errorf("plan wrote to the workspace: %v", err)
	}
	if got := readFile(t, filepath.Dir(dot), "features.dot"); !strings.Contains(got, `"gitignore" -> "task-scripts"`) {
		t.Errorf("unexpected DOT graph:\n%s", got)
	}
}

func TestPublishManifest(t *testing.T) {
	dir := testWorkspace(t)

	out, err := execute(t, "publish-manifest", "--cwd", dir, "@acme/app")
	if err != nil {
		t.Fatalf("publish-manifest failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output is not a manifest: %v\n%s", err, out)
	}
	if m["name"] != "@acme/app" {
		t.Errorf("name = %v", m["name"])
	}

	if _, err := execute(t, "publish-manifest", "--cwd", dir, "@acme/missing"); err == nil {
		t.Error("expected an error for an unknown package")
	}
}

func TestHistory(t *testing.T) {
	dir := testWorkspace(t)
	for i := 0; i < 2; i++ {
		if _, err := execute(t, "apply", "--cwd", dir, "--interactive=false"); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
	}

	out, err := execute(t, "history", "--cwd", dir, "--json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var runs []stores.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	created := false
	for _, run := range runs {
		out, err = execute(t, "history", "--cwd", dir, run.ID, "--kind", "file")
		if err != nil {
			t.Fatalf("history of run %s failed: %v", run.ID, err)
		}
		if strings.Contains(out, ".nvmrc") && strings.Contains(out, "create") {
			created = true
		}
	}
	if !created {
		t.Error("no run recorded the .nvmrc create")
	}

	if _, err := execute(t, "history", "--cwd", dir, "no-such-run"); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestHistoryDisabled(t *testing.T) {
	dir := testWorkspace(t)
	writeFile(t, dir, "sous.yaml", "history:\n  enabled: false\nlogging:\n  level: error\n")

	if _, err := execute(t, "apply", "--cwd", dir, "--interactive=false"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".sous", "history.db")); !os.IsNotExist(err) {
		t.Errorf("history written while disabled: %v", err)
	}
	if _, err := execute(t, "history", "--cwd", dir); err == nil {
		t.Error("expected history to fail when disabled")
	}
}

func TestWatchRunLogsThroughContext(t *testing.T) {
	dir := testWorkspace(t)
	s, err := openSession(&globalFlags{cwd: dir}, "test")
	if err != nil {
		t.Fatalf("openSession() error = %v", err)
	}
	defer s.close()

	var logs bytes.Buffer
	log := telemetry.NewLoggerTo(telemetry.LoggingConfig{Level: "info", Format: "json"}, &logs)
	ctx := log.NewComponentLogger("watch").WithContext(context.Background())

	s.watchRun(ctx, io.Discard, applyOptions{})
	if !strings.Contains(logs.String(), `"message":"Workspace converged"`) {
		t.Fatalf("expected a converged line, got:\n%s", logs.String())
	}
	for _, field := range []string{`"component":"watch"`, `"run_id":"`} {
		if !strings.Contains(logs.String(), field) {
			t.Errorf("log line missing %s:\n%s", field, logs.String())
		}
	}

	logs.Reset()
	writeFile(t, dir, ".nvmrc", "18\n")
	s.watchRun(ctx, io.Discard, applyOptions{})
	if !strings.Contains(logs.String(), `"needs_review":[".nvmrc"]`) {
		t.Errorf("expected the dirty run to list .nvmrc:\n%s", logs.String())
	}
}
