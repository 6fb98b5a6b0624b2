// Package fault defines the orchestrator's error taxonomy. Every operation
// failure carries a code that distinguishes invalid requests from recoverable
// concurrency outcomes the caller should simply retry.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure mode.
type Code string

const (
	// CodeNotFound indicates a referenced id does not exist.
	CodeNotFound Code = "not_found"
	// CodeDuplicateConflict indicates re-registration with conflicting data.
	CodeDuplicateConflict Code = "duplicate_conflict"
	// CodeInvalidDependency indicates a dependency references an unknown task.
	CodeInvalidDependency Code = "invalid_dependency"
	// CodeCyclicDependency indicates a submission would create a cycle.
	CodeCyclicDependency Code = "cyclic_dependency"
	// CodeAlreadyClaimed indicates another agent won the claim race.
	CodeAlreadyClaimed Code = "already_claimed"
	// CodeNotReady indicates the task is not in the ready state.
	CodeNotReady Code = "not_ready"
	// CodeNotAssignee indicates the caller does not hold the claim.
	CodeNotAssignee Code = "not_assignee"
	// CodeInvalidState indicates the transition is illegal from the current state.
	CodeInvalidState Code = "invalid_state"
	// CodeForbidden indicates a non-participant acted on a session.
	CodeForbidden Code = "forbidden"
	// CodeBusy indicates lock acquisition timed out.
	CodeBusy Code = "busy"
	// CodeInvalidArgument indicates a malformed field (range, empty string).
	CodeInvalidArgument Code = "invalid_argument"
	// CodeInternal indicates a storage or programming failure.
	CodeInternal Code = "internal"
)

// Error is a coded orchestrator error.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps a storage or programming failure.
func Internal(err error, format string, args ...any) *Error {
	return Wrap(CodeInternal, err, format, args...)
}

// CodeOf extracts the code from an error chain. Non-coded errors map to
// CodeInternal; nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the failure is an expected concurrency outcome
// the caller should retry, rather than a defect in the request.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeAlreadyClaimed, CodeBusy, CodeNotReady:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error to the status code the API surface reports.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case "":
		return http.StatusOK
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateConflict, CodeAlreadyClaimed, CodeNotReady, CodeInvalidState:
		return http.StatusConflict
	case CodeInvalidDependency, CodeCyclicDependency, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotAssignee, CodeForbidden:
		return http.StatusForbidden
	case CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
