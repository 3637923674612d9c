// Package features holds the features that ship with sous.
//
// gitignore keeps the root .gitignore in step with every file other features
// mark IgnoreVCS. task-scripts mirrors collected tasks into the scripts field of
// the manifest that owns them. Both are enabled by name through the Registry.
package features
