package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for run-level handling.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates an invalid feature set or workspace configuration.
	// Configuration errors abort the run before any I/O happens.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassResolution indicates a failure converging one package manifest.
	// Examples: dependency not found in the registry, unreadable manifest.
	// Other packages continue.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassConflict indicates an on-disk file edited outside the engine.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassCache indicates an unusable persisted cache. Never fatal.
	ErrorClassCache ErrorClass = "cache"

	// ErrorClassStage indicates a feature mutating collected state in a stage that
	// no longer accepts that mutation.
	ErrorClassStage ErrorClass = "stage"

	// ErrorClassPermanent indicates a non-recoverable I/O or producer failure.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Feature is the feature responsible for the error, if known.
	Feature string `json:"feature,omitempty"`

	// Path is the workspace-relative file or package path involved, if any.
	Path string `json:"path,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var ctx []string
	if e.Feature != "" {
		ctx = append(ctx, "feature="+e.Feature)
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Operation != "" {
		ctx = append(ctx, "operation="+e.Operation)
	}

	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{Class: class, Message: message, Err: err}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return newError(ErrorClassConfiguration, message, err)
}

// NewResolutionError creates a new resolution error.
func NewResolutionError(message string, err error) *EngineError {
	return newError(ErrorClassResolution, message, err)
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return newError(ErrorClassConflict, message, err)
}

// NewCacheError creates a new cache error.
func NewCacheError(message string, err error) *EngineError {
	return newError(ErrorClassCache, message, err)
}

// NewStageError creates a new stage violation error for the given feature and operation.
func NewStageError(feature, operation string, stage Stage) *EngineError {
	return &EngineError{
		Class:     ErrorClassStage,
		Message:   fmt.Sprintf("%s is not allowed once collected state is %s", operation, stage),
		Code:      ErrCodeStageViolation,
		Feature:   feature,
		Operation: operation,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return newError(ErrorClassPermanent, message, err)
}

// WithFeature adds feature context to an error.
func (e *EngineError) WithFeature(feature string) *EngineError {
	e.Feature = feature
	return e
}

// WithPath adds path context to an error.
func (e *EngineError) WithPath(path string) *EngineError {
	e.Path = path
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// ClassOf returns the class of the first EngineError in err's chain.
func ClassOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool { return hasClass(err, ErrorClassConfiguration) }

// IsResolution returns true if the error is classified as a resolution error.
func IsResolution(err error) bool { return hasClass(err, ErrorClassResolution) }

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool { return hasClass(err, ErrorClassConflict) }

// IsCache returns true if the error is classified as a cache error.
func IsCache(err error) bool { return hasClass(err, ErrorClassCache) }

// IsStage returns true if the error is a stage violation.
func IsStage(err error) bool { return hasClass(err, ErrorClassStage) }

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool { return hasClass(err, ErrorClassPermanent) }

// Common error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDuplicateFeature  = "DUPLICATE_FEATURE"
	ErrCodeReservedName      = "RESERVED_NAME"
	ErrCodeNameConvention    = "NAME_CONVENTION"
	ErrCodeOrdering          = "ORDERING"
	ErrCodeStageViolation    = "STAGE_VIOLATION"
	ErrCodeSymlinkExclusive  = "SYMLINK_EXCLUSIVE"
	ErrCodeInitialContent    = "INITIAL_CONTENT"
	ErrCodeManualChanges     = "MANUAL_CHANGES"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeManifest          = "MANIFEST"
	ErrCodeCacheVersion      = "CACHE_VERSION"
	ErrCodeCacheCorrupt      = "CACHE_CORRUPT"
	ErrCodeProducerFailed    = "PRODUCER_FAILED"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeDependencyFailed  = "DEPENDENCY_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeInvalidDependency = "INVALID_DEPENDENCY"
)
