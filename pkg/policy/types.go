package policy

import (
	"time"

	"github.com/openfroyo/sous/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but never block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run before any file is written.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Subject is the file path or dependency name the violation is about.
	Subject string `json:"subject,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	// Violations lists every violation found.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Files        []engine.FileInfo          `json:"files"`
	Dependencies []engine.DependencyRequest `json:"dependencies"`
	Resolutions  map[string]string          `json:"resolutions"`
	Tasks        []engine.Task              `json:"tasks"`
}

// NewInput snapshots a collected state view.
func NewInput(view *engine.StateView) *Input {
	in := &Input{
		Files:        view.Files(nil),
		Dependencies: view.Dependencies(),
		Resolutions:  view.Resolutions(),
		Tasks:        view.Tasks(),
	}
	if in.Files == nil {
		in.Files = []engine.FileInfo{}
	}
	if in.Dependencies == nil {
		in.Dependencies = []engine.DependencyRequest{}
	}
	if in.Tasks == nil {
		in.Tasks = []engine.Task{}
	}
	return in
}
