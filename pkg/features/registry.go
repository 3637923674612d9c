package features

import (
	"fmt"
	"sort"

	"github.com/openfroyo/sous/pkg/engine"
)

// Constructor builds a fresh feature value.
type Constructor func() engine.Feature

// Registry maps feature names to constructors.
type Registry map[string]Constructor

// Builtins returns a registry of the features that ship with sous.
func Builtins() Registry {
	return Registry{
		GitignoreName:   Gitignore,
		TaskScriptsName: TaskScripts,
	}
}

// Names returns the registered names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named features in order. An unknown name is a
// configuration error.
func (r Registry) Build(names []string) ([]engine.Feature, error) {
	out := make([]engine.Feature, 0, len(names))
	for _, name := range names {
		ctor, ok := r[name]
		if !ok {
			return nil, engine.NewConfigurationError(fmt.Sprintf("unknown feature %q", name), nil).
				WithCode(engine.ErrCodeNotFound).
				WithFeature(name).
				WithDetail("available", r.Names())
		}
		out = append(out, ctor())
	}
	return out, nil
}
