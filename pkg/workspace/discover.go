package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/sous/pkg/engine"
)

// PnpmFileName is the pnpm workspace file read when package.json has no workspaces.
const PnpmFileName = "pnpm-workspace.yaml"

// skipDirs are never searched for packages.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".sous":        true,
}

// Patterns are the member globs of a workspace.
type Patterns struct {
	Include []string
	Exclude []string
}

// Empty reports whether the workspace has no member globs.
func (p Patterns) Empty() bool {
	return len(p.Include) == 0
}

// Discover loads the workspace rooted at root. The root entry comes first, followed
// by the member packages sorted by relative path.
func Discover(root string, logger zerolog.Logger) (*engine.Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	fsys := engine.OSFS{}

	rootEntry := engine.LoadPackageEntry(fsys, engine.PackageKindWorkspace, abs, ".")
	if err := rootEntry.Err(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, engine.NewConfigurationError("no package.json in workspace root", err).
				WithPath(abs)
		}
		return nil, engine.NewConfigurationError("unreadable root package.json", err).
			WithCode(engine.ErrCodeManifest).
			WithPath(abs)
	}

	patterns, err := ReadPatterns(abs, rootEntry.Manifest())
	if err != nil {
		return nil, err
	}

	ws := &engine.Workspace{Dir: abs, Packages: []*engine.PackageEntry{rootEntry}}
	if patterns.Empty() {
		return ws, nil
	}

	rels, err := Match(abs, patterns)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		p := engine.LoadPackageEntry(fsys, engine.PackageKindPackage, filepath.Join(abs, filepath.FromSlash(rel)), rel)
		if err := p.Err(); err != nil {
			logger.Warn().Err(err).Str("package", rel).Msg("Package manifest is unreadable")
		}
		ws.Packages = append(ws.Packages, p)
	}

	logger.Debug().
		Str("root", abs).
		Int("packages", len(rels)).
		Msg("Workspace discovered")
	return ws, nil
}

// ReadPatterns returns the member globs from the root manifest, falling back to
// pnpm-workspace.yaml.
func ReadPatterns(root string, m *engine.Manifest) (Patterns, error) {
	if raw, ok := m.Get("workspaces"); ok {
		globs, err := workspaceGlobs(raw)
		if err != nil {
			return Patterns{}, engine.NewConfigurationError("invalid workspaces field", err).
				WithCode(engine.ErrCodeManifest)
		}
		return split(globs), nil
	}

	data, err := os.ReadFile(filepath.Join(root, PnpmFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Patterns{}, nil
	}
	if err != nil {
		return Patterns{}, fmt.Errorf("failed to read %s: %w", PnpmFileName, err)
	}
	var pnpm struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &pnpm); err != nil {
		return Patterns{}, engine.NewConfigurationError("invalid "+PnpmFileName, err).
			WithPath(PnpmFileName)
	}
	return split(pnpm.Packages), nil
}

// workspaceGlobs accepts ["a/*"] and {"packages": ["a/*"]}.
func workspaceGlobs(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []any:
		return stringsOf(v)
	case map[string]any:
		pkgs, ok := v["packages"]
		if !ok {
			return nil, nil
		}
		list, ok := pkgs.([]any)
		if !ok {
			return nil, fmt.Errorf("workspaces.packages must be an array, got %T", pkgs)
		}
		return stringsOf(list)
	default:
		return nil, fmt.Errorf("workspaces must be an array or an object, got %T", raw)
	}
}

func stringsOf(list []any) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("workspace glob must be a string, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func split(globs []string) Patterns {
	var p Patterns
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(g, "!"); ok {
			p.Exclude = append(p.Exclude, normalize(rest))
			continue
		}
		p.Include = append(p.Include, normalize(g))
	}
	return p
}

func normalize(g string) string {
	g = strings.TrimPrefix(filepath.ToSlash(g), "./")
	return strings.TrimSuffix(g, "/")
}

// Match walks root and returns the relative directories holding a package.json that
// match an include glob and no exclude glob, sorted.
func Match(root string, p Patterns) ([]string, error) {
	include, err := compile(p.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compile(p.Exclude)
	if err != nil {
		return nil, err
	}

	var rels []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == root {
			return nil
		}
		if skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}
		if _, err := os.Stat(filepath.Join(path, engine.ManifestFileName)); err == nil {
			rels = append(rels, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	sort.Strings(rels)
	return rels, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, engine.NewConfigurationError(fmt.Sprintf("invalid workspace glob %q", p), err).
				WithCode(engine.ErrCodeManifest)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
