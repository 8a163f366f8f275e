package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Pod lifecycle. All of these leave the pod and its members untouched.
	ErrCodePodNotPending   ErrorCode = "POD_NOT_PENDING"
	ErrCodeAlreadyResolved ErrorCode = "ALREADY_RESOLVED"
	ErrCodeDeadlinePassed  ErrorCode = "DEADLINE_PASSED"
	ErrCodeNotIncluded     ErrorCode = "NOT_INCLUDED"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is an error whose Code and Message are safe to show to clients.
// The cause is kept for logs only.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

// PodNotPending reports a confirm/reject on a pod that already left pending.
func PodNotPending(status string) *AppError {
	return New(ErrCodePodNotPending, fmt.Sprintf("Pod is already %s", status))
}

// AlreadyResolved reports that a concurrent actor resolved the pod first.
// Callers should re-query the pod instead of retrying.
func AlreadyResolved() *AppError {
	return New(ErrCodeAlreadyResolved, "Pod already resolved")
}

func DeadlinePassed() *AppError {
	return New(ErrCodeDeadlinePassed, "Pod confirmation deadline has passed")
}

// NotIncluded reports that participants lost the race to join a new pod.
func NotIncluded(participantIDs []string) *AppError {
	return New(ErrCodeNotIncluded, "Participants not included in pod").
		WithDetails(map[string]any{"participantIds": participantIDs})
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// GetCode returns err's code, or ErrCodeInternal for anything that is not
// an AppError.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
