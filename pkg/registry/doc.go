// Package registry resolves dependency versions against an npm registry.
//
// Client implements engine.Registry. A spec is either a dist-tag ("latest",
// "next") or a semver range; ranges resolve to the highest published version that
// satisfies them. "npm:<name>@<range>" specs are followed to the aliased package.
// Package metadata is fetched once per name and memoized until Reset.
package registry
