package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// ManifestFileName is the manifest file of every package.
const ManifestFileName = "package.json"

// ManifestModifier edits a manifest in place. Modifiers of one package run strictly
// in submission order and may block on network I/O.
type ManifestModifier func(ctx context.Context, m *Manifest) error

// PackagePaths locates a package on disk.
type PackagePaths struct {
	// Abs is the absolute package directory.
	Abs string `json:"abs"`

	// Rel is the slash path relative to the workspace root, "." for the root.
	Rel string `json:"rel"`

	// Manifest is the absolute manifest path.
	Manifest string `json:"manifest"`
}

type namedModifier struct {
	feature string
	fn      ManifestModifier
}

// PackageEntry is one manifest of the workspace and its pending modifiers.
type PackageEntry struct {
	Kind  PackageKind
	Name  string
	Paths PackagePaths

	mu               sync.Mutex
	manifest         *Manifest
	loadErr          error
	modifiers        []namedModifier
	publishModifiers []namedModifier
}

// NewPackageEntry creates an entry around an already loaded manifest.
func NewPackageEntry(kind PackageKind, abs, rel string, manifest *Manifest) *PackageEntry {
	if manifest == nil {
		manifest = NewManifest()
	}
	rel = filepath.ToSlash(rel)
	if rel == "" {
		rel = "."
	}
	name := manifest.Name()
	if name == "" {
		name = rel
	}
	return &PackageEntry{
		Kind: kind,
		Name: name,
		Paths: PackagePaths{
			Abs:      abs,
			Rel:      rel,
			Manifest: filepath.Join(abs, ManifestFileName),
		},
		manifest: manifest,
	}
}

// LoadPackageEntry reads the manifest in abs. An unreadable manifest does not fail
// here; it is kept on the entry and surfaces as a resolution error when the package
// converges.
func LoadPackageEntry(fsys FS, kind PackageKind, abs, rel string) *PackageEntry {
	data, err := fsys.ReadFile(filepath.Join(abs, ManifestFileName))
	if err != nil {
		p := NewPackageEntry(kind, abs, rel, nil)
		p.loadErr = err
		return p
	}
	m, err := ParseManifest(data)
	if err != nil {
		p := NewPackageEntry(kind, abs, rel, nil)
		p.loadErr = err
		return p
	}
	return NewPackageEntry(kind, abs, rel, m)
}

// Err returns the manifest load error, if any.
func (p *PackageEntry) Err() error {
	return p.loadErr
}

// Manifest returns the current in-memory manifest.
func (p *PackageEntry) Manifest() *Manifest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manifest
}

// AddModifier appends a normal modifier.
func (p *PackageEntry) AddModifier(feature string, fn ManifestModifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modifiers = append(p.modifiers, namedModifier{feature: feature, fn: fn})
}

// AddPublishModifier appends a publish-time modifier.
func (p *PackageEntry) AddPublishModifier(feature string, fn ManifestModifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishModifiers = append(p.publishModifiers, namedModifier{feature: feature, fn: fn})
}

// ApplyAndCommit runs every pending normal modifier in order and writes the manifest
// when it changed. The pending list is flushed either way.
func (p *PackageEntry) ApplyAndCommit(ctx context.Context, fsys FS) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	modifiers := p.modifiers
	p.modifiers = nil

	if p.loadErr != nil {
		return false, NewResolutionError("manifest is unreadable", p.loadErr).
			WithCode(ErrCodeManifest).
			WithPath(p.Paths.Rel)
	}

	before, err := p.manifest.Marshal()
	if err != nil {
		return false, NewResolutionError("failed to encode manifest", err).WithPath(p.Paths.Rel)
	}

	for _, mod := range modifiers {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := mod.fn(ctx, p.manifest); err != nil {
			var ee *EngineError
			if errors.As(err, &ee) {
				if ee.Feature == "" {
					ee.Feature = mod.feature
				}
				if ee.Path == "" {
					ee.Path = p.Paths.Rel
				}
				return false, ee
			}
			return false, NewResolutionError("manifest modifier failed", err).
				WithFeature(mod.feature).
				WithPath(p.Paths.Rel)
		}
	}

	after, err := p.manifest.Marshal()
	if err != nil {
		return false, NewResolutionError("failed to encode manifest", err).WithPath(p.Paths.Rel)
	}
	if bytes.Equal(before, after) {
		return false, nil
	}

	current, err := fsys.ReadFile(p.Paths.Manifest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, NewResolutionError("failed to read manifest", err).WithPath(p.Paths.Rel)
	}
	if bytes.Equal(current, after) {
		return false, nil
	}
	if err := fsys.WriteFile(p.Paths.Manifest, after, 0o644); err != nil {
		return false, NewPermanentError("failed to write manifest", err).WithPath(p.Paths.Rel)
	}
	return true, nil
}

// PublishManifest derives the manifest used for release artifacts. It runs the
// publish modifiers on a copy of the current manifest and never writes to disk.
func (p *PackageEntry) PublishManifest(ctx context.Context) (*Manifest, error) {
	p.mu.Lock()
	m := p.manifest.Clone()
	modifiers := append([]namedModifier(nil), p.publishModifiers...)
	p.mu.Unlock()

	if p.loadErr != nil {
		return nil, NewResolutionError("manifest is unreadable", p.loadErr).WithPath(p.Paths.Rel)
	}

	for _, mod := range modifiers {
		if err := mod.fn(ctx, m); err != nil {
			return nil, NewResolutionError("publish manifest modifier failed", err).
				WithFeature(mod.feature).
				WithPath(p.Paths.Rel)
		}
	}
	return m, nil
}

func (p *PackageEntry) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Paths.Rel)
}

// Workspace is the ordered set of packages a run converges. The root comes first.
type Workspace struct {
	Dir      string
	Packages []*PackageEntry
}

// Root returns the workspace root entry.
func (w *Workspace) Root() *PackageEntry {
	for _, p := range w.Packages {
		if p.Kind == PackageKindWorkspace {
			return p
		}
	}
	return nil
}

// Package looks a package up by name or relative path.
func (w *Workspace) Package(ref string) *PackageEntry {
	for _, p := range w.Packages {
		if p.Name == ref || p.Paths.Rel == ref {
			return p
		}
	}
	return nil
}

// owner returns the package whose directory is the longest prefix of rel.
func (w *Workspace) owner(rel string) *PackageEntry {
	var best *PackageEntry
	bestLen := -1
	for _, p := range w.Packages {
		prefix := p.Paths.Rel
		switch {
		case prefix == ".":
			if bestLen < 0 {
				best, bestLen = p, 0
			}
		case rel == prefix || len(rel) > len(prefix) && rel[:len(prefix)] == prefix && rel[len(prefix)] == '/':
			if len(prefix) > bestLen {
				best, bestLen = p, len(prefix)
			}
		}
	}
	return best
}
