// Package workspace discovers the packages of a JavaScript workspace.
//
// The root package.json lists member globs in its "workspaces" field, either as an
// array or as {"packages": [...]}. Without it, pnpm-workspace.yaml is read. Globs
// support "*" and "**"; a leading "!" excludes matches.
package workspace
