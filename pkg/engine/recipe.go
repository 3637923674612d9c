package engine

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openfroyo/sous/pkg/formats"
)

// FileSpec declares a generated file with initial content.
type FileSpec struct {
	// Content is the initial value. Ignored when Producer is set.
	Content any

	// Producer computes the initial value lazily at apply time.
	Producer ContentFunc

	// Attributes are merged into the file's attributes.
	Attributes Attributes

	// Format overrides the codec chosen by extension.
	Format formats.Codec
}

// Layer declares a content modifier.
type Layer struct {
	// Fn transforms the content.
	Fn ContentFunc

	// CanCreate lets Fn run when no content exists yet.
	CanCreate bool

	// Attributes are merged into the file's attributes.
	Attributes Attributes

	// Format overrides the codec chosen by extension.
	Format formats.Codec
}

// Recipe is the API a feature declares its intents through. It is scoped to the
// packages the feature's Scope matched. A nil package argument means the workspace root.
type Recipe struct {
	feature   string
	state     *CollectedState
	workspace *Workspace
	packages  []*PackageEntry
	peers     PeerContext
	stats     *FeatureStats
	validate  *validator.Validate
	logger    zerolog.Logger
}

// Feature returns the name of the feature the recipe belongs to.
func (r *Recipe) Feature() string { return r.feature }

// Root returns the workspace root package.
func (r *Recipe) Root() *PackageEntry { return r.workspace.Root() }

// Packages returns the packages in the feature's scope.
func (r *Recipe) Packages() []*PackageEntry {
	return append([]*PackageEntry(nil), r.packages...)
}

// Peer returns the merged peer context of a feature.
func (r *Recipe) Peer(name string) (any, bool) { return r.peers.Get(name) }

// Global returns the merged global context.
func (r *Recipe) Global() any { return r.peers.Global() }

// View returns the read-only view of the collected state.
func (r *Recipe) View() *StateView { return r.state.View() }

// Logger returns a logger tagged with the feature name.
func (r *Recipe) Logger() zerolog.Logger { return r.logger }

func (r *Recipe) target(pkg *PackageEntry, operation string) (*PackageEntry, error) {
	if pkg == nil {
		root := r.workspace.Root()
		if root == nil {
			return nil, NewConfigurationError("workspace has no root package", nil).
				WithFeature(r.feature).
				WithOperation(operation)
		}
		return root, nil
	}
	if pkg.Kind == PackageKindWorkspace {
		return pkg, nil
	}
	for _, p := range r.packages {
		if p == pkg {
			return pkg, nil
		}
	}
	return nil, NewConfigurationError("package is outside the feature scope", nil).
		WithFeature(r.feature).
		WithOperation(operation).
		WithPath(pkg.Paths.Rel)
}

func (r *Recipe) file(pkg *PackageEntry, path, operation string, attrs Attributes, format formats.Codec, fn func(f *ManagedFile) error) error {
	p, err := r.target(pkg, operation)
	if err != nil {
		return err
	}
	err = r.state.mutateFile(r.feature, operation, joinRel(p.Paths.Rel, path), attrs, func(f *ManagedFile) error {
		if format != nil {
			f.codec = format
		}
		if fn == nil {
			return nil
		}
		return fn(f)
	})
	if err == nil {
		r.stats.Files++
	}
	return err
}

// GenerateFile declares a generated file with initial content.
func (r *Recipe) GenerateFile(pkg *PackageEntry, path string, spec FileSpec) error {
	producer := spec.Producer
	if producer == nil {
		content := spec.Content
		producer = func(context.Context, any) (any, error) { return deepCopy(content), nil }
	}
	return r.file(pkg, path, "generate file", spec.Attributes, spec.Format, func(f *ManagedFile) error {
		return f.setInitial(r.feature, producer)
	})
}

// ModifyGeneratedFile appends a generated modifier.
func (r *Recipe) ModifyGeneratedFile(pkg *PackageEntry, path string, layer Layer) error {
	return r.file(pkg, path, "modify generated file", layer.Attributes, layer.Format, func(f *ManagedFile) error {
		return f.addGenerated(r.feature, layer.CanCreate, layer.Fn)
	})
}

// EditFile appends a user-editable modifier. It receives the file as parsed from disk
// unless generated layers produced content.
func (r *Recipe) EditFile(pkg *PackageEntry, path string, layer Layer) error {
	return r.file(pkg, path, "edit file", layer.Attributes, layer.Format, func(f *ManagedFile) error {
		return f.addEditable(r.feature, layer.CanCreate, layer.Fn)
	})
}

// IgnoreFile records attributes for a path without producing content.
func (r *Recipe) IgnoreFile(pkg *PackageEntry, path string, attrs Attributes) error {
	return r.file(pkg, path, "ignore file", attrs, nil, nil)
}

// Symlink declares path as a symlink to target.
func (r *Recipe) Symlink(pkg *PackageEntry, path, target string, attrs Attributes) error {
	return r.file(pkg, path, "symlink", attrs, nil, func(f *ManagedFile) error {
		return f.setSymlink(r.feature, target)
	})
}

// AddDependency requests a dependency. List defaults to devDependencies and Managed
// to ManagedVersion.
func (r *Recipe) AddDependency(pkg *PackageEntry, req DependencyRequest) error {
	p, err := r.target(pkg, "add dependency")
	if err != nil {
		return err
	}
	if req.List == "" {
		req.List = DevDependencies
	}
	if req.Managed == "" {
		req.Managed = ManagedVersion
	}
	req.Package = p.Paths.Rel
	if err := r.validate.Struct(req); err != nil {
		return NewConfigurationError("invalid dependency request", err).
			WithCode(ErrCodeInvalidDependency).
			WithFeature(r.feature).
			WithPath(p.Paths.Rel).
			WithDetail("dependency", req.Name)
	}
	if err := r.state.addDependency(r.feature, req); err != nil {
		return err
	}
	r.stats.Dependencies++
	return nil
}

// AddResolution pins a transitive dependency in the root manifest.
func (r *Recipe) AddResolution(name, version string) error {
	return r.state.addResolution(r.feature, name, version)
}

// ModifyManifest appends a manifest modifier. Allowed during recipes and garnish.
func (r *Recipe) ModifyManifest(pkg *PackageEntry, fn ManifestModifier) error {
	return r.modifier(pkg, fn, false)
}

// ModifyPublishManifest appends a publish manifest modifier. Allowed during recipes
// and garnish.
func (r *Recipe) ModifyPublishManifest(pkg *PackageEntry, fn ManifestModifier) error {
	return r.modifier(pkg, fn, true)
}

func (r *Recipe) modifier(pkg *PackageEntry, fn ManifestModifier, publish bool) error {
	p, err := r.target(pkg, "modify manifest")
	if err != nil {
		return err
	}
	if err := r.state.addModifier(r.feature, p, fn, publish); err != nil {
		return err
	}
	r.stats.Modifiers++
	return nil
}

// AddTask declares a task for an external runner.
func (r *Recipe) AddTask(pkg *PackageEntry, task Task) error {
	p, err := r.target(pkg, "add task")
	if err != nil {
		return err
	}
	task.Package = p.Paths.Rel
	if err := r.validate.Struct(task); err != nil {
		return NewConfigurationError("invalid task", err).
			WithCode(ErrCodeValidation).
			WithFeature(r.feature).
			WithPath(p.Paths.Rel)
	}
	if err := r.state.addTask(r.feature, task); err != nil {
		return err
	}
	r.stats.Tasks++
	return nil
}
