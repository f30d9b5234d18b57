// Package errors provides structured error types for the okr engine.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for the engine.
const (
	// Persistence errors
	CodeDerivedWriteFailed  Code = "DERIVED_WRITE_FAILED"
	CodeSnapshotWriteFailed Code = "SNAPSHOT_WRITE_FAILED"

	// Dispatch errors
	CodeRetriesExhausted Code = "CASCADE_RETRIES_EXHAUSTED"
	CodeQueueFull        Code = "QUEUE_FULL"

	// Input errors
	CodeConfigInvalid  Code = "CONFIG_INVALID"
	CodeHierarchyCycle Code = "HIERARCHY_CYCLE"
)

// Category groups error codes for exit status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryUnavailable
)

var codeCategories = map[Code]Category{
	CodeDerivedWriteFailed:  CategoryInternal,
	CodeSnapshotWriteFailed: CategoryInternal,
	CodeRetriesExhausted:    CategoryInternal,
	CodeQueueFull:           CategoryUnavailable,
	CodeConfigInvalid:       CategoryBadRequest,
	CodeHierarchyCycle:      CategoryConflict,
}

// ExitCode returns the process exit code for a category.
func (c Category) ExitCode() int {
	switch c {
	case CategoryBadRequest:
		return 2
	case CategoryConflict:
		return 3
	case CategoryUnavailable:
		return 4
	default:
		return 1
	}
}

// EngineError is the structured error type for the engine.
type EngineError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *EngineError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *EngineError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *EngineError) MarshalJSON() ([]byte, error) {
	type alias EngineError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an EngineError with the same code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *EngineError) WithCause(err error) *EngineError {
	return &EngineError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrDerivedWrite returns an error for a failed write of a derived field.
func ErrDerivedWrite(entity, id, field string, cause error) *EngineError {
	return &EngineError{
		Code:  CodeDerivedWriteFailed,
		What:  fmt.Sprintf("write %s %s of %s", entity, field, id),
		Fix:   "Check the database connection, then run 'okr recompute <user>' to repair derived fields",
		Cause: cause,
	}
}

// ErrSnapshotWrite returns an error for a snapshot that could not be built or stored.
func ErrSnapshotWrite(userID, cycleID string, cause error) *EngineError {
	scope := "global"
	if cycleID != "" {
		scope = "cycle " + cycleID
	}
	return &EngineError{
		Code:  CodeSnapshotWriteFailed,
		What:  fmt.Sprintf("build %s snapshot for %s", scope, userID),
		Fix:   "Run 'okr refresh <user>' once the store is reachable",
		Cause: cause,
	}
}

// ErrRetriesExhausted returns an error when a cascade job failed on every attempt.
func ErrRetriesExhausted(job string, attempts int, cause error) *EngineError {
	return &EngineError{
		Code:  CodeRetriesExhausted,
		What:  fmt.Sprintf("cascade %s failed after %d attempts", job, attempts),
		Why:   "Maximum retry attempts exceeded without a successful run",
		Fix:   "Fix the underlying failure, then run 'okr recompute <user>'",
		Cause: cause,
	}
}

// ErrQueueFull returns an error when the cascade queue cannot accept more work.
func ErrQueueFull(capacity int) *EngineError {
	return &EngineError{
		Code: CodeQueueFull,
		What: "cascade queue is full",
		Why:  fmt.Sprintf("All %d queue slots are taken", capacity),
		Fix:  "Raise cascade.queue_size or cascade.workers; a later recompute converges anyway",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *EngineError {
	return &EngineError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .okr/config.yaml or the OKR_* environment and fix the invalid field",
	}
}

// ErrHierarchyCycle returns an error for a key result parent link that would loop.
func ErrHierarchyCycle(krID string, cause error) *EngineError {
	return &EngineError{
		Code:  CodeHierarchyCycle,
		What:  fmt.Sprintf("key result %s cannot be placed under that parent", krID),
		Why:   "The parent chain would loop back to the key result",
		Fix:   "Choose a parent outside this key result's subtree",
		Cause: cause,
	}
}

// AsEngineError attempts to convert an error to an EngineError.
// Returns nil if the error chain holds no EngineError.
func AsEngineError(err error) *EngineError {
	var engErr *EngineError
	if stderrors.As(err, &engErr) {
		return engErr
	}
	return nil
}
