package engine

import (
	"context"
	"testing"
)

func dependencyFeature(name string, reqs ...DependencyRequest) Feature {
	return Feature{
		Name: name,
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			for _, req := range reqs {
				if err := r.AddDependency(nil, req); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func TestDependencyAddedAndRemoved(t *testing.T) {
	ws := newTestWorkspace(t)
	registry := &mockRegistry{versions: map[string]string{"lodash": "4.17.21"}}
	e := newTestEngine(Options{Registry: registry})

	summary, err := e.Run(context.Background(), ws, []Feature{
		dependencyFeature("utils", DependencyRequest{Name: "lodash", Version: "^4.0.0"}),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, ws.Dir, "package.json")
	dev, _ := m["devDependencies"].(map[string]any)
	if dev["lodash"] != "^4.0.0" {
		t.Errorf("devDependencies = %v", m["devDependencies"])
	}
	ledger, _ := m[LedgerKey].([]any)
	if len(ledger) != 1 || ledger[0] != "lodash" {
		t.Errorf("ledger = %v", m[LedgerKey])
	}
	if summary.DependenciesChanged != 1 {
		t.Errorf("DependenciesChanged = %d, want 1", summary.DependenciesChanged)
	}

	summary, err = e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m = readManifest(t, ws.Dir, "package.json")
	if _, ok := m["devDependencies"]; ok {
		t.Errorf("devDependencies should be removed, got %v", m["devDependencies"])
	}
	if _, ok := m[LedgerKey]; ok {
		t.Errorf("ledger should be removed, got %v", m[LedgerKey])
	}
	if summary.DependenciesRemoved != 1 {
		t.Errorf("DependenciesRemoved = %d, want 1", summary.DependenciesRemoved)
	}
}

func TestDependencyLeavesUserEntriesAlone(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name": "root", "dependencies": {"react": "^18.0.0"}}`)
	ws := loadTestWorkspace(t, dir)

	e := newTestEngine(Options{Registry: &mockRegistry{versions: map[string]string{"react": "19.0.0"}}})
	features := []Feature{dependencyFeature("ui", DependencyRequest{
		Name:         "react",
		List:         Dependencies,
		Tag:          "latest",
		SkipIfExists: true,
	})}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, dir, "package.json")
	deps, _ := m["dependencies"].(map[string]any)
	if deps["react"] != "^18.0.0" {
		t.Errorf("react = %v, want the user's range", deps["react"])
	}
	if _, ok := m[LedgerKey]; ok {
		t.Error("skipped entries must not enter the ledger")
	}

	// Unowned entries survive when nobody requests them.
	if _, err := e.Run(context.Background(), loadTestWorkspace(t, dir), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m = readManifest(t, dir, "package.json")
	if deps, _ := m["dependencies"].(map[string]any); deps["react"] != "^18.0.0" {
		t.Errorf("user dependency removed: %v", m["dependencies"])
	}
}

func TestDependencyTagAndAlias(t *testing.T) {
	ws := newTestWorkspace(t)
	registry := &mockRegistry{versions: map[string]string{"typescript": "5.6.3", "string-width": "4.2.3"}}
	e := newTestEngine(Options{Registry: registry, RangePrefix: "~"})

	features := []Feature{dependencyFeature("ts",
		DependencyRequest{Name: "typescript", Tag: "latest"},
		DependencyRequest{Name: "string-width", InstallAsAlias: "string-width-cjs", Tag: "latest"},
	)}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, ws.Dir, "package.json")
	dev, _ := m["devDependencies"].(map[string]any)
	if dev["typescript"] != "~5.6.3" {
		t.Errorf("typescript = %v", dev["typescript"])
	}
	if dev["string-width-cjs"] != "npm:string-width@~4.2.3" {
		t.Errorf("alias = %v", dev["string-width-cjs"])
	}
	ledger, _ := m[LedgerKey].([]any)
	if len(ledger) != 2 || ledger[0] != "string-width-cjs" || ledger[1] != "typescript" {
		t.Errorf("ledger = %v", ledger)
	}
}

func TestDependencyPresenceAndMove(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name": "root", "devDependencies": {"vitest": "1.0.0", "tslib": "^2.0.0"}}`)
	ws := loadTestWorkspace(t, dir)

	e := newTestEngine(Options{Registry: &mockRegistry{versions: map[string]string{"tslib": "2.8.0"}}})
	features := []Feature{dependencyFeature("test",
		DependencyRequest{Name: "vitest", Managed: ManagedPresence},
		DependencyRequest{Name: "tslib", List: Dependencies, Version: "^2.8.0"},
	)}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, dir, "package.json")
	dev, _ := m["devDependencies"].(map[string]any)
	deps, _ := m["dependencies"].(map[string]any)
	if dev["vitest"] != "1.0.0" {
		t.Errorf("presence entry changed: %v", dev["vitest"])
	}
	if _, ok := dev["tslib"]; ok {
		t.Error("tslib should have moved out of devDependencies")
	}
	if deps["tslib"] != "^2.8.0" {
		t.Errorf("tslib = %v", deps["tslib"])
	}
}

func TestDependencyResolutionFailureIsPerPackage(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{Registry: &mockRegistry{versions: map[string]string{"ok": "1.0.0"}}})

	features := []Feature{{
		Name: "deps",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			if err := r.AddDependency(nil, DependencyRequest{Name: "ok", Tag: "latest"}); err != nil {
				return err
			}
			app := ws.Package("packages/app")
			return r.AddDependency(app, DependencyRequest{Name: "missing", Tag: "latest"})
		},
	}}

	summary, err := e.Run(context.Background(), ws, features)
	if !IsResolution(err) {
		t.Fatalf("Run() error = %v, want resolution error", err)
	}
	if !summary.Dirty {
		t.Error("summary should be dirty")
	}
	root := readManifest(t, ws.Dir, "package.json")
	if dev, _ := root["devDependencies"].(map[string]any); dev["ok"] != "^1.0.0" {
		t.Errorf("root devDependencies = %v", root["devDependencies"])
	}
	app := readManifest(t, ws.Dir, "packages/app/package.json")
	if _, ok := app["devDependencies"]; ok {
		t.Errorf("failed package must not be written: %v", app)
	}
}

func TestDependencyResolutionsOnRootOnly(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	features := []Feature{{
		Name: "pins",
		DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.AddResolution("minimist", "1.2.8")
		},
	}}
	if _, err := e.Run(context.Background(), ws, features); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	root := readManifest(t, ws.Dir, "package.json")
	if res, _ := root["resolutions"].(map[string]any); res["minimist"] != "1.2.8" {
		t.Errorf("resolutions = %v", root["resolutions"])
	}
	app := readManifest(t, ws.Dir, "packages/app/package.json")
	if _, ok := app["resolutions"]; ok {
		t.Error("resolutions must only be written to the root")
	}
}

func TestDependencyConflictingResolutions(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	pin := func(name, version string) Feature {
		return Feature{Name: name, DefineRecipe: func(ctx context.Context, r *Recipe) error {
			return r.AddResolution("minimist", version)
		}}
	}
	_, err := e.Run(context.Background(), ws, []Feature{pin("a", "1.2.8"), pin("b", "1.2.6")})
	if !IsConfiguration(err) {
		t.Fatalf("Run() error = %v, want configuration error", err)
	}
}

func TestDependencyInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  DependencyRequest
	}{
		{"missing name", DependencyRequest{Version: "1.0.0"}},
		{"version and tag", DependencyRequest{Name: "a", Version: "1.0.0", Tag: "next"}},
		{"unknown list", DependencyRequest{Name: "a", List: "bundledDependencies"}},
		{"unknown mode", DependencyRequest{Name: "a", Managed: "always"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWorkspace(t)
			e := newTestEngine(Options{})
			_, err := e.Run(context.Background(), ws, []Feature{dependencyFeature("bad", tt.req)})
			if !IsConfiguration(err) {
				t.Fatalf("Run() error = %v, want configuration error", err)
			}
		})
	}
}

func TestDependencyVersionWithoutRegistry(t *testing.T) {
	ws := newTestWorkspace(t)
	e := newTestEngine(Options{})

	if _, err := e.Run(context.Background(), ws, []Feature{
		dependencyFeature("f", DependencyRequest{Name: "left-pad", Version: "1.3.0"}),
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, ws.Dir, "package.json")
	if dev, _ := m["devDependencies"].(map[string]any); dev["left-pad"] != "^1.3.0" {
		t.Errorf("devDependencies = %v", m["devDependencies"])
	}
}

func TestDependencyExactVersionGetsRangePrefix(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"exact", "4.17.21", "~4.17.21"},
		{"caret range", "^4.0.0", "^4.0.0"},
		{"x range", "4.x", "4.x"},
		{"prerelease", "5.0.0-rc.1", "~5.0.0-rc.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWorkspace(t)
			registry := &mockRegistry{versions: map[string]string{"lodash": "4.17.21"}}
			e := newTestEngine(Options{Registry: registry, RangePrefix: "~"})

			if _, err := e.Run(context.Background(), ws, []Feature{
				dependencyFeature("utils", DependencyRequest{Name: "lodash", Version: tt.version}),
			}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			m := readManifest(t, ws.Dir, "package.json")
			if dev, _ := m["devDependencies"].(map[string]any); dev["lodash"] != tt.want {
				t.Errorf("lodash = %v, want %s", dev["lodash"], tt.want)
			}
		})
	}
}

func TestDependencyUnmanagedRequestKeepsEntry(t *testing.T) {
	ws := newTestWorkspace(t)
	registry := &mockRegistry{versions: map[string]string{"lodash": "4.17.21"}}
	e := newTestEngine(Options{Registry: registry})

	if _, err := e.Run(context.Background(), ws, []Feature{
		dependencyFeature("utils", DependencyRequest{Name: "lodash", Version: "^4.0.0", Managed: ManagedVersion}),
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	summary, err := e.Run(context.Background(), loadTestWorkspace(t, ws.Dir), []Feature{
		dependencyFeature("utils", DependencyRequest{Name: "lodash", Version: "^4.0.0", Managed: ManagedNone}),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	m := readManifest(t, ws.Dir, "package.json")
	if dev, _ := m["devDependencies"].(map[string]any); dev["lodash"] != "^4.0.0" {
		t.Errorf("devDependencies = %v, want lodash kept", m["devDependencies"])
	}
	if _, ok := m[LedgerKey]; ok {
		t.Errorf("ledger = %v, want it dropped for an unmanaged request", m[LedgerKey])
	}
	if summary.DependenciesRemoved != 0 {
		t.Errorf("DependenciesRemoved = %d, want 0", summary.DependenciesRemoved)
	}
}
