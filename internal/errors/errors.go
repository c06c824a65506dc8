// Package errors provides the structured error type shared by every
// component of the orchestrator.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code identifies a specific, stable failure mode.
type Code string

const (
	// Registry / config errors — fatal for the whole process.
	CodeRegistryNotFound  Code = "REGISTRY_NOT_FOUND"
	CodeRegistryMalformed Code = "REGISTRY_MALFORMED"
	CodeConfigInvalid     Code = "CONFIG_INVALID"

	// Task-file codec / scanner errors — non-fatal, scoped to one file or task.
	CodeParseError   Code = "PARSE_ERROR"
	CodeSchemaError  Code = "SCHEMA_ERROR"
	CodeUnknownField Code = "UNKNOWN_FIELD"

	// Lookup / transition errors.
	CodeTaskNotFound         Code = "TASK_NOT_FOUND"
	CodeTaskAlreadyRunning   Code = "TASK_ALREADY_RUNNING"
	CodeDependencyUnresolved Code = "DEPENDENCY_UNRESOLVED"

	// Executor errors.
	CodeSpawnError      Code = "SPAWN_ERROR"
	CodeExecutorFailure Code = "EXECUTOR_FAILURE"

	// Issue-tracker bridge errors.
	CodeTrackerError Code = "TRACKER_ERROR"
)

// Category buckets codes for logging/metrics framing. It is never
// serialized into task files; it only shapes how the structured logger and
// the (out-of-scope) CLI present a failure.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

var codeCategories = map[Code]Category{
	CodeRegistryNotFound:     CategoryNotFound,
	CodeRegistryMalformed:    CategoryBadRequest,
	CodeConfigInvalid:        CategoryBadRequest,
	CodeParseError:           CategoryBadRequest,
	CodeSchemaError:          CategoryBadRequest,
	CodeUnknownField:         CategoryBadRequest,
	CodeTaskNotFound:         CategoryNotFound,
	CodeTaskAlreadyRunning:   CategoryConflict,
	CodeDependencyUnresolved: CategoryBadRequest,
	CodeSpawnError:           CategoryInternal,
	CodeExecutorFailure:      CategoryInternal,
	CodeTrackerError:         CategoryInternal,
}

// OrcError is the structured error currency used across every component.
type OrcError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *OrcError) Error() string {
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

// Unwrap returns the underlying cause, if any.
func (e *OrcError) Unwrap() error {
	return e.Cause
}

// Category returns the logging category for this error's code.
func (e *OrcError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler, flattening Cause to a string.
func (e *OrcError) MarshalJSON() ([]byte, error) {
	type alias OrcError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an *OrcError with the same code, so callers
// can do errors.Is(err, ErrTaskNotFound("x")) without comparing messages.
func (e *OrcError) Is(target error) bool {
	t, ok := target.(*OrcError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e with cause attached.
func (e *OrcError) WithCause(cause error) *OrcError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// --- constructors, one per taxonomy code ---

func ErrRegistryNotFound(path string) *OrcError {
	return &OrcError{
		Code: CodeRegistryNotFound,
		What: fmt.Sprintf("project registry not found at %s", path),
		Why:  "no projects.json exists at the given workspace path",
		Fix:  "create a projects.json registry or point at an existing workspace",
	}
}

func ErrRegistryMalformed(path string, cause error) *OrcError {
	return &OrcError{
		Code:  CodeRegistryMalformed,
		What:  fmt.Sprintf("project registry at %s is malformed", path),
		Why:   "the registry file could not be parsed as valid JSON matching the expected shape",
		Fix:   "fix or regenerate projects.json",
		Cause: cause,
	}
}

func ErrConfigInvalid(field, reason string) *OrcError {
	return &OrcError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "correct the field in .orc/config.json or the corresponding environment variable",
	}
}

func ErrParseError(path string, cause error) *OrcError {
	return &OrcError{
		Code:  CodeParseError,
		What:  fmt.Sprintf("failed to parse task file %s", path),
		Why:   "the file is not valid JSON",
		Fix:   "fix the file's JSON syntax",
		Cause: cause,
	}
}

func ErrSchemaError(path string, taskIndex int, field string) *OrcError {
	return &OrcError{
		Code: CodeSchemaError,
		What: fmt.Sprintf("task at index %d in %s is missing required field %q", taskIndex, path, field),
		Why:  "id, title, and status are required on every task",
		Fix:  fmt.Sprintf("add %q to the task or remove the task", field),
	}
}

func ErrUnknownField(path, fieldPath string) *OrcError {
	return &OrcError{
		Code: CodeUnknownField,
		What: fmt.Sprintf("unrecognized field %q in %s", fieldPath, path),
		Why:  "the field is not part of the known schema; it is preserved but unused",
	}
}

func ErrTaskNotFound(id string) *OrcError {
	return &OrcError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "no task with this id exists in the scanned collection",
		Fix:  "check the task id, or re-run the scanner",
	}
}

func ErrTaskAlreadyRunning(id string) *OrcError {
	return &OrcError{
		Code: CodeTaskAlreadyRunning,
		What: fmt.Sprintf("task %s is already in_progress", id),
		Why:  "a task cannot be dispatched twice while a worker is still running for it",
		Fix:  "wait for the running worker to finish, or inspect its history",
	}
}

func ErrDependencyUnresolved(id string, missing []string) *OrcError {
	return &OrcError{
		Code: CodeDependencyUnresolved,
		What: fmt.Sprintf("task %s has unresolved blockers", id),
		Why:  fmt.Sprintf("blocked_by references ids not present in the scanned collection: %s", strings.Join(missing, ", ")),
	}
}

func ErrSpawnError(cmd string, cause error) *OrcError {
	return &OrcError{
		Code:  CodeSpawnError,
		What:  fmt.Sprintf("failed to spawn worker command %q", cmd),
		Why:   "the subprocess could not be started",
		Fix:   "check that the worker command is installed and on PATH",
		Cause: cause,
	}
}

func ErrExecutorFailure(exitCode int, stderrHead string) *OrcError {
	return &OrcError{
		Code: CodeExecutorFailure,
		What: fmt.Sprintf("worker exited with code %d", exitCode),
		Why:  stderrHead,
	}
}

func ErrTrackerError(op string, cause error) *OrcError {
	return &OrcError{
		Code:  CodeTrackerError,
		What:  fmt.Sprintf("issue tracker operation %q failed", op),
		Cause: cause,
	}
}

// As reports whether err (or something it wraps) is an *OrcError, writing it
// into target.
func As(err error, target **OrcError) bool {
	for err != nil {
		if oe, ok := err.(*OrcError); ok {
			*target = oe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// AsOrcError attempts to extract an *OrcError from err, returning nil if it
// is not one.
func AsOrcError(err error) *OrcError {
	var oe *OrcError
	if As(err, &oe) {
		return oe
	}
	return nil
}

// Wrap wraps a generic error with no specific code, for call sites that
// have not yet been given a dedicated constructor.
func Wrap(err error, what string) *OrcError {
	return &OrcError{Code: Code("UNKNOWN"), What: what, Cause: err}
}
