package engine

import (
	"fmt"
	"time"
)

// Stage is the lifecycle stage of a CollectedState.
type Stage int

const (
	// StageFresh accepts every intent.
	StageFresh Stage = iota

	// StageRecipesDefined is entered after all recipes ran. Only manifest modifiers
	// may still be added.
	StageRecipesDefined

	// StageGarnishDefined is entered after all garnish passes ran. The state is sealed.
	StageGarnishDefined
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageFresh:
		return "fresh"
	case StageRecipesDefined:
		return "recipes-defined"
	case StageGarnishDefined:
		return "garnish-defined"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// FileStatus is the reconcile status of a managed file.
type FileStatus string

const (
	// FileStatusPending means the file has not been reconciled yet.
	FileStatusPending FileStatus = "pending"

	// FileStatusApplied means the disk matches the desired state.
	FileStatusApplied FileStatus = "applied"

	// FileStatusSkipped means the file was intentionally left alone.
	FileStatusSkipped FileStatus = "skipped"

	// FileStatusNeedsUserInput means the file was edited outside the engine.
	FileStatusNeedsUserInput FileStatus = "needs-user-input"
)

// ApplyKind describes what the last reconcile of a file did.
type ApplyKind string

const (
	ApplyKindNone              ApplyKind = ""
	ApplyKindNonFS             ApplyKind = "non-fs"
	ApplyKindGenerated         ApplyKind = "generated"
	ApplyKindUserEditable      ApplyKind = "user-editable"
	ApplyKindSymlink           ApplyKind = "symlink"
	ApplyKindInvalid           ApplyKind = "invalid"
	ApplyKindNoLongerGenerated ApplyKind = "no-longer-generated"
)

// PackageKind distinguishes the workspace root from member packages.
type PackageKind string

const (
	PackageKindWorkspace PackageKind = "workspace"
	PackageKindPackage   PackageKind = "package"
)

// DependencyList is one of the manifest dependency maps.
type DependencyList string

const (
	Dependencies         DependencyList = "dependencies"
	DevDependencies      DependencyList = "devDependencies"
	PeerDependencies     DependencyList = "peerDependencies"
	OptionalDependencies DependencyList = "optionalDependencies"
)

// DependencyLists lists every dependency map in manifest order.
var DependencyLists = []DependencyList{
	Dependencies,
	DevDependencies,
	PeerDependencies,
	OptionalDependencies,
}

// ManagedMode controls how strictly the engine owns a requested dependency.
type ManagedMode string

const (
	// ManagedVersion keeps both presence and version converged.
	ManagedVersion ManagedMode = "version"

	// ManagedPresence keeps the dependency present but leaves an existing version alone.
	ManagedPresence ManagedMode = "presence"

	// ManagedNone adds the dependency once and never tracks it in the ledger.
	ManagedNone ManagedMode = "false"
)

// FileOp is the disk operation recorded for a file.
type FileOp string

const (
	FileOpNone     FileOp = "unchanged"
	FileOpCreate   FileOp = "create"
	FileOpUpdate   FileOp = "update"
	FileOpDelete   FileOp = "delete"
	FileOpSymlink  FileOp = "symlink"
	FileOpConflict FileOp = "conflict"
	FileOpSkip     FileOp = "skip"
	FileOpError    FileOp = "error"
)

// DependencyOp is the manifest operation recorded for a dependency.
type DependencyOp string

const (
	DependencyOpUnchanged DependencyOp = "unchanged"
	DependencyOpAdd       DependencyOp = "add"
	DependencyOpUpdate    DependencyOp = "update"
	DependencyOpRemove    DependencyOp = "remove"
	DependencyOpSkip      DependencyOp = "skip"
	DependencyOpError     DependencyOp = "error"
)

// FileOperation is a reporter event for one reconciled file.
type FileOperation struct {
	Path     string     `json:"path"`
	Package  string     `json:"package,omitempty"`
	Op       FileOp     `json:"op"`
	Kind     ApplyKind  `json:"kind"`
	Status   FileStatus `json:"status"`
	Features []string   `json:"features,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// DependencyOperation is a reporter event for one dependency entry.
type DependencyOperation struct {
	Package string         `json:"package"`
	Name    string         `json:"name"`
	List    DependencyList `json:"list,omitempty"`
	Op      DependencyOp   `json:"op"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// FeatureStats counts the intents a feature queued.
type FeatureStats struct {
	Files        int `json:"files"`
	Dependencies int `json:"dependencies"`
	Tasks        int `json:"tasks"`
	Modifiers    int `json:"modifiers"`
}

func (s *FeatureStats) add(o FeatureStats) {
	s.Files += o.Files
	s.Dependencies += o.Dependencies
	s.Tasks += o.Tasks
	s.Modifiers += o.Modifiers
}

// Summary is the structured result of a run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FilesEvaluated int `json:"files_evaluated"`
	FilesChanged   int `json:"files_changed"`
	FilesSkipped   int `json:"files_skipped"`
	FilesDeleted   int `json:"files_deleted"`

	DependenciesEvaluated int `json:"dependencies_evaluated"`
	DependenciesChanged   int `json:"dependencies_changed"`
	DependenciesRemoved   int `json:"dependencies_removed"`

	PackagesTouched []string `json:"packages_touched,omitempty"`
	NeedsReview     []string `json:"needs_review,omitempty"`
	CacheError      string   `json:"cache_error,omitempty"`
	Errors          []string `json:"errors,omitempty"`

	Features map[string]FeatureStats `json:"features,omitempty"`

	// Dirty is set when the run left manual review items or errors behind.
	Dirty bool `json:"dirty"`
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Task describes work for an external task runner. sous never executes tasks.
type Task struct {
	Name      string   `json:"name" validate:"required"`
	Command   string   `json:"command" validate:"required"`
	Package   string   `json:"package"`
	Feature   string   `json:"feature"`
	DependsOn []string `json:"dependsOn,omitempty"`
	Inputs    []string `json:"inputs,omitempty"`
	Outputs   []string `json:"outputs,omitempty"`
	Cache     bool     `json:"cache"`
}

func (t Task) clone() Task {
	t.DependsOn = append([]string(nil), t.DependsOn...)
	t.Inputs = append([]string(nil), t.Inputs...)
	t.Outputs = append([]string(nil), t.Outputs...)
	return t
}
