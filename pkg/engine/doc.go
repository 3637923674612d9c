// Package engine provides the convergence engine behind sous.
//
// # Overview
//
// sous keeps configuration artifacts of a workspace (files, manifest fields, task
// definitions, dependency entries) in a declared state. Intents come from features,
// small plugins that run in a fixed order. A run goes through these phases:
//
//  1. Validate - reject duplicate or reserved feature names and ordering violations
//  2. Context - merge peer contexts (global first, then every feature key)
//  3. Recipes - each feature appends intents into the CollectedState
//  4. Garnish - each feature observes the complete state and may add manifest edits
//  5. Files - reconcile every ManagedFile concurrently, then ask about conflicts
//  6. Manifests - converge dependencies and run manifest modifiers per package
//
// # Core Domain Types
//
//   - Feature: a named plugin with optional capabilities
//   - PeerContext: feature name to context value, merged by reducers
//   - CollectedState: the intent buffer for one run, guarded by a Stage
//   - StateView: read-only observation of the CollectedState
//   - ManagedFile: one path with content layers and a reconcile state machine
//   - FileStore: all managed files plus the persisted cache
//   - PackageEntry: one manifest with ordered modifier chains
//
// # Convergence
//
// Running twice with unchanged inputs writes nothing the second time. A file is only
// overwritten when it is missing, when the bytes on disk are the ones the engine wrote
// last time, or when the file is marked AlwaysOverwrite. Everything else is a conflict
// that is either confirmed interactively or leaves the run dirty.
//
// Dependencies are tracked through the managedDependencies ledger stored in each
// manifest, so a dependency that is no longer requested is removed again.
//
// # Error Classification
//
//   - Configuration: invalid feature set, aborts before any I/O
//   - Resolution: one package failed to converge, others continue
//   - Conflict: manual edits on disk
//   - Cache: unusable cache, treated as empty
//   - Stage: a feature mutated state after it was sealed
package engine
