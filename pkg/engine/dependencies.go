package engine

import (
	"context"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// LedgerKey is the manifest field listing the dependencies sous owns.
const LedgerKey = "managedDependencies"

// DependencyRequest asks for a dependency in one package manifest.
type DependencyRequest struct {
	// Name is the registry package name.
	Name string `json:"name" validate:"required"`

	// InstallAsAlias installs Name under another manifest key as npm:<name>@<range>.
	InstallAsAlias string `json:"installAsAlias,omitempty"`

	// List is the dependency map the entry belongs to.
	List DependencyList `json:"list" validate:"required,oneof=dependencies devDependencies peerDependencies optionalDependencies"`

	// Version is a semver range written verbatim. Exclusive with Tag.
	Version string `json:"version,omitempty" validate:"excluded_with=Tag"`

	// Tag is a registry dist-tag resolved to a version.
	Tag string `json:"tag,omitempty"`

	// SkipIfExists leaves an entry alone when it exists and sous does not own it.
	SkipIfExists bool `json:"skipIfExists,omitempty"`

	// Managed is the ownership mode, ManagedVersion by default.
	Managed ManagedMode `json:"managed,omitempty" validate:"omitempty,oneof=presence version false"`

	// Package is the relative directory of the target package.
	Package string `json:"package"`

	// Feature is the requesting feature.
	Feature string `json:"feature"`
}

// Key returns the manifest key of the entry.
func (r DependencyRequest) Key() string {
	if r.InstallAsAlias != "" {
		return r.InstallAsAlias
	}
	return r.Name
}

// readLedger returns the keys recorded in the manifest ledger.
func readLedger(m *Manifest) map[string]bool {
	out := map[string]bool{}
	for _, k := range m.Strings(LedgerKey) {
		out[k] = true
	}
	return out
}

func writeLedger(m *Manifest, keys map[string]bool) {
	if len(keys) == 0 {
		m.Delete(LedgerKey)
		return
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	list := make([]any, len(sorted))
	for i, k := range sorted {
		list[i] = k
	}
	m.Set(LedgerKey, list)
}

// findDependency returns the first list holding key and its value.
func findDependency(m *Manifest, key string) (DependencyList, string, bool) {
	for _, list := range DependencyLists {
		obj := m.Object(string(list))
		if obj == nil {
			continue
		}
		if v, ok := obj[key]; ok {
			s, _ := v.(string)
			return list, s, true
		}
	}
	return "", "", false
}

func removeDependency(m *Manifest, list DependencyList, key string) {
	obj := m.Object(string(list))
	if obj == nil {
		return
	}
	delete(obj, key)
	if len(obj) == 0 {
		m.Delete(string(list))
	}
}

// dependencyConverger builds the dependency modifier of one package.
type dependencyConverger struct {
	pkg         *PackageEntry
	requests    []DependencyRequest
	resolutions map[string]string
	registry    Registry
	rangePrefix string
	record      func(DependencyOperation)
}

// modifier resolves every request, records owned keys in the ledger and removes keys
// the ledger owned that nobody requests anymore. A registry failure aborts the chain.
func (c *dependencyConverger) modifier() ManifestModifier {
	return func(ctx context.Context, m *Manifest) error {
		previous := readLedger(m)
		owned := map[string]bool{}
		requested := map[string]bool{}

		for _, req := range c.requests {
			key := req.Key()
			requested[key] = true
			op := DependencyOperation{Package: c.pkg.Paths.Rel, Name: key, List: req.List}
			list, existing, found := findDependency(m, key)
			op.From = existing

			switch {
			case req.SkipIfExists && found && !previous[key]:
				op.Op = DependencyOpSkip
				op.To = existing
				c.record(op)
				continue

			case req.Managed == ManagedPresence && found:
				op.To = existing
				op.Op = DependencyOpUnchanged
				if list != req.List {
					removeDependency(m, list, key)
					m.EnsureObject(string(req.List))[key] = existing
					op.Op = DependencyOpUpdate
				}

			default:
				value, err := c.resolve(ctx, req)
				if err != nil {
					op.Op = DependencyOpError
					op.Error = err.Error()
					c.record(op)
					return err
				}
				op.To = value
				switch {
				case !found:
					op.Op = DependencyOpAdd
				case list != req.List || existing != value:
					op.Op = DependencyOpUpdate
				default:
					op.Op = DependencyOpUnchanged
				}
				if found && list != req.List {
					removeDependency(m, list, key)
				}
				m.EnsureObject(string(req.List))[key] = value
			}

			if req.Managed != ManagedNone {
				owned[key] = true
			}
			c.record(op)
		}

		stale := make([]string, 0)
		for key := range previous {
			if !requested[key] {
				stale = append(stale, key)
			}
		}
		sort.Strings(stale)
		for _, key := range stale {
			for _, list := range DependencyLists {
				obj := m.Object(string(list))
				if obj == nil {
					continue
				}
				if v, ok := obj[key]; ok {
					from, _ := v.(string)
					removeDependency(m, list, key)
					c.record(DependencyOperation{
						Package: c.pkg.Paths.Rel,
						Name:    key,
						List:    list,
						Op:      DependencyOpRemove,
						From:    from,
					})
				}
			}
		}

		writeLedger(m, owned)

		if c.pkg.Kind == PackageKindWorkspace && len(c.resolutions) > 0 {
			obj := m.EnsureObject("resolutions")
			for name, version := range c.resolutions {
				obj[name] = version
			}
		}
		return nil
	}
}

func (c *dependencyConverger) resolve(ctx context.Context, req DependencyRequest) (string, error) {
	if req.Version != "" && c.registry == nil {
		return aliasValue(req, req.Name, c.versionRange(req.Version)), nil
	}
	if c.registry == nil {
		return "", NewResolutionError("no dependency registry configured", nil).
			WithCode(ErrCodeDependencyFailed).
			WithFeature(req.Feature).
			WithPath(c.pkg.Paths.Rel).
			WithDetail("dependency", req.Name)
	}

	spec := req.Version
	if spec == "" {
		spec = req.Tag
	}
	if spec == "" {
		spec = "latest"
	}

	res, err := c.registry.Resolve(ctx, req.Name, spec)
	if err != nil {
		return "", NewResolutionError("failed to resolve dependency", err).
			WithCode(ErrCodeNotFound).
			WithFeature(req.Feature).
			WithPath(c.pkg.Paths.Rel).
			WithDetail("dependency", req.Name).
			WithDetail("spec", spec)
	}

	name := res.Name
	if name == "" {
		name = req.Name
	}
	if req.Version != "" {
		return aliasValue(req, name, c.versionRange(req.Version)), nil
	}
	return aliasValue(req, name, c.rangePrefix+res.Version), nil
}

// versionRange prefixes an exact version with the range prefix. Ranges, tags and
// other specifiers are kept verbatim.
func (c *dependencyConverger) versionRange(version string) string {
	if _, err := semver.StrictNewVersion(version); err != nil {
		return version
	}
	return c.rangePrefix + version
}

func aliasValue(req DependencyRequest, name, rng string) string {
	if req.InstallAsAlias != "" {
		return "npm:" + name + "@" + rng
	}
	return rng
}
