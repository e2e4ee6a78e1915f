package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a machine-readable classification of a registry failure.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeCycle             ErrorCode = "CYCLE_DETECTED"
	CodeIntegrityFailure  ErrorCode = "INTEGRITY_FAILURE"
	CodeImmutableField    ErrorCode = "IMMUTABLE_FIELD"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	CodeBusUnavailable    ErrorCode = "BUS_UNAVAILABLE"
)

// Error is the structured error type returned by every engine operation.
// Code identifies which invariant failed; Message is human-readable.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// CyclePath holds the offending dependency path for CYCLE_DETECTED.
	CyclePath []string `json:"cycle_path,omitempty"`

	// RetryAfter is set for RATE_LIMITED and retryable store failures.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Field names the rejected field for IMMUTABLE_FIELD and validation
	// failures where a single field is at fault.
	Field string `json:"field,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewValidationError reports malformed input. Validation failures are
// surfaced before any store access.
func NewValidationError(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// NewNotFoundError reports a missing asset, event, or key.
func NewNotFoundError(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NewConflictError reports a uniqueness or active-dependents violation.
func NewConflictError(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// NewCycleError reports a rejected dependency admission, carrying the
// offending path in dependency order (first element repeats at the end).
func NewCycleError(path []string) *Error {
	return &Error{
		Code:      CodeCycle,
		Message:   fmt.Sprintf("dependency cycle detected: %s", joinPath(path)),
		CyclePath: path,
	}
}

// NewIntegrityError reports a checksum or signature mismatch.
func NewIntegrityError(msg string) *Error {
	return &Error{Code: CodeIntegrityFailure, Message: msg}
}

// NewImmutableFieldError reports an attempt to mutate write-once data.
func NewImmutableFieldError(field string) *Error {
	return &Error{
		Code:    CodeImmutableField,
		Message: fmt.Sprintf("field %s is immutable once set", field),
		Field:   field,
	}
}

// NewInvalidTransitionError reports an illegal lifecycle move.
func NewInvalidTransitionError(from, to AssetStatus) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("no transition from %s to %s", from, to),
	}
}

// NewPermissionDeniedError reports an authorization failure.
func NewPermissionDeniedError(resource, action string) *Error {
	return &Error{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("missing permission %s:%s", resource, action),
	}
}

// NewRateLimitedError reports bucket exhaustion with the duration until the
// requested cost becomes available.
func NewRateLimitedError(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

// NewStoreUnavailableError wraps a collaborator failure from the relational
// store or cache. Callers are expected to retry with backoff.
func NewStoreUnavailableError(err error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: "store unavailable", cause: err}
}

// NewBusUnavailableError wraps a message bus failure.
func NewBusUnavailableError(err error) *Error {
	return &Error{Code: CodeBusUnavailable, Message: "message bus unavailable", cause: err}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a registry
// error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}
