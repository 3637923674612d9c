package engine

import (
	"context"
)

// Feature is a named plugin. Every capability is optional; a nil field means the
// feature does not take part in that phase.
type Feature struct {
	// Name identifies the feature and its peer context key. Unique per run.
	Name string

	// After lists features that must appear earlier in the feature list.
	After []string

	// Scope selects the packages the feature's recipe operates on.
	Scope Scope

	// InitialPeerContext returns the feature's own context value.
	InitialPeerContext func() any

	// ModifyPeerContexts returns reducers keyed by context key. The key may be
	// another feature's name or GlobalContextKey.
	ModifyPeerContexts func() map[string]Reducer

	// DefineRecipe declares the feature's intents.
	DefineRecipe func(ctx context.Context, r *Recipe) error

	// DefineGarnish runs after every recipe with the complete state visible.
	DefineGarnish func(ctx context.Context, r *Recipe) error
}

// Scope restricts the packages a feature sees through its Recipe.
type Scope struct {
	// RootOnly limits the feature to the workspace root.
	RootOnly bool

	// Match selects packages when set. Ignored when RootOnly is true.
	Match func(p *PackageEntry) bool
}

func (s Scope) matches(p *PackageEntry) bool {
	if s.RootOnly {
		return p.Kind == PackageKindWorkspace
	}
	if s.Match != nil {
		return s.Match(p)
	}
	return true
}

// Registry resolves dependency versions.
type Registry interface {
	// Resolve resolves a dist-tag or semver range for a package name.
	Resolve(ctx context.Context, name, spec string) (*Resolution, error)
}

// Resolution is a resolved registry version.
type Resolution struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Prompter asks the user to confirm overwriting a manually edited file.
type Prompter interface {
	// Confirm shows the diff for path and reports whether to overwrite.
	Confirm(ctx context.Context, path, diff string) (bool, error)
}

// Gate validates the sealed collected state before anything is written.
type Gate interface {
	Check(ctx context.Context, view *StateView) error
}

// Reporter receives structured run events. Reporters are observers only.
type Reporter interface {
	PhaseStart(phase string)
	PhaseEnd(phase string, err error)
	FeatureStart(feature string)
	FeatureEnd(feature string, stats FeatureStats)
	FileOperation(op FileOperation)
	DependencyOperation(op DependencyOperation)
	Summary(s *Summary)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) PhaseStart(string) {}
func (NopReporter) PhaseEnd(string, error) {}
func (NopReporter) FeatureStart(string) {}
func (NopReporter) FeatureEnd(string, FeatureStats) {}
func (NopReporter) FileOperation(FileOperation) {}
func (NopReporter) DependencyOperation(DependencyOperation) {}
func (NopReporter) Summary(*Summary) {}
