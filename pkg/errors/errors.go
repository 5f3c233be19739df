// Package errors provides structured error types for n8nctl.
package errors

import (
	"fmt"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeExists       ErrorCode = "ALREADY_EXISTS"
	ErrCodePrecondition ErrorCode = "PRECONDITION_FAILED"
	ErrCodeTool         ErrorCode = "TOOL_INVOCATION_FAILED"
	ErrCodeDrift        ErrorCode = "STATE_DRIFT"
	ErrCodePartialApply ErrorCode = "PARTIAL_APPLY"
	ErrCodeHealth       ErrorCode = "HEALTH_TIMEOUT"
	ErrCodeResource     ErrorCode = "RESOURCE_MISSING"
	ErrCodeIO           ErrorCode = "IO_ERROR"
	ErrCodeAuth         ErrorCode = "AUTH_ERROR"
	ErrCodeCapability   ErrorCode = "CAPABILITY_MISSING"
	ErrCodeInterrupted  ErrorCode = "INTERRUPTED"
	ErrCodeBackend      ErrorCode = "BACKEND_ERROR"
)

// Error is the base error type for n8nctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// PreconditionError creates an error for a deployment precondition that does
// not hold (e.g., a live backup marker from a crashed run, or deletion
// protection still enabled on a resource about to be destroyed).
func PreconditionError(check, message string) *Error {
	return &Error{
		Code:    ErrCodePrecondition,
		Message: message,
		Details: map[string]interface{}{
			"check": check,
		},
	}
}

// ToolError creates an error for a failed external tool invocation. The
// stderr tail is carried in the details so the caller can surface it
// without re-running the tool.
func ToolError(tool string, args []string, err error, stderr string) *Error {
	return &Error{
		Code:    ErrCodeTool,
		Message: fmt.Sprintf("%s %s failed", tool, firstArg(args)),
		Cause:   err,
		Details: map[string]interface{}{
			"tool":   tool,
			"args":   args,
			"stderr": stderr,
		},
	}
}

// DriftError creates an error for infrastructure state that no longer
// matches the recorded plan or configuration.
func DriftError(message string, addresses []string) *Error {
	return &Error{
		Code:    ErrCodeDrift,
		Message: message,
		Details: map[string]interface{}{
			"addresses": addresses,
		},
	}
}

// PartialApplyError records an apply that failed after changing some
// resources. The addresses of resources already created are preserved so a
// follow-up run can continue instead of starting over.
func PartialApplyError(applied []string, cause error) *Error {
	return &Error{
		Code:    ErrCodePartialApply,
		Message: fmt.Sprintf("apply failed after %d resource(s) changed", len(applied)),
		Cause:   cause,
		Details: map[string]interface{}{
			"applied": applied,
		},
	}
}

// HealthTimeoutError creates an error for a workload that did not become
// ready within the allowed window.
func HealthTimeoutError(workload string, ready, desired int, window string) *Error {
	return &Error{
		Code:    ErrCodeHealth,
		Message: fmt.Sprintf("%s not ready within %s (%d/%d replicas)", workload, window, ready, desired),
		Details: map[string]interface{}{
			"workload": workload,
			"ready":    ready,
			"desired":  desired,
		},
	}
}

// AuthError creates an error for failed cloud credential verification.
func AuthError(provider, message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeAuth,
		Message: message,
		Cause:   cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// CapabilityError creates an error for credentials that authenticate but
// lack a required capability (disabled API, unreachable subscription).
func CapabilityError(provider string, missing []string) *Error {
	return &Error{
		Code:    ErrCodeCapability,
		Message: fmt.Sprintf("%s credentials lack required capabilities: %v", provider, missing),
		Details: map[string]interface{}{
			"provider": provider,
			"missing":  missing,
		},
	}
}

// BackendError creates a snapshot backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
