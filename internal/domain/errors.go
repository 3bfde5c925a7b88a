// Package domain provides the canonical error taxonomy for form extraction.
//
// Every failure a pipeline stage can report is a *Error carrying one of the
// Kind values below. Callers never see raw errors from inside a run; the
// service layer turns a *Error into a failed Result and the HTTP layer maps
// its Kind to a stable status code.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, caller-visible category of a failure.
type Kind string

const (
	// KindInvalidRequest indicates malformed or missing call inputs.
	KindInvalidRequest Kind = "InvalidRequest"

	// KindUnknownFormIdentifier indicates the form identifier is not registered.
	KindUnknownFormIdentifier Kind = "UnknownFormIdentifier"

	// KindModelInvocation indicates a transport, timeout or provider failure.
	KindModelInvocation Kind = "ModelInvocationError"

	// KindInvalidModelResponse indicates the model output is not a JSON object.
	KindInvalidModelResponse Kind = "InvalidModelResponse"

	// KindValidation indicates a parseable but schema non-conformant record.
	KindValidation Kind = "ValidationError"

	// KindInternal indicates a defect not otherwise classified.
	KindInternal Kind = "InternalError"
)

// Reason gives extra specificity for a Kind.
type Reason string

const (
	ReasonTimeout    Reason = "timeout"
	ReasonCanceled   Reason = "canceled"
	ReasonTransport  Reason = "transport"
	ReasonUpstream   Reason = "upstream_status"
	ReasonEmpty      Reason = "empty_completion"
	ReasonTokenLimit Reason = "token_limit"
)

// Error is a tagged failure produced by a pipeline stage.
type Error struct {
	// Kind is the category of error.
	Kind Kind `json:"error_code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Field names the offending schema field for validation errors.
	Field string `json:"field,omitempty"`

	// Reason is an optional sub-reason, e.g. timeout for model invocation.
	Reason Reason `json:"reason,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnknownFormIdentifier:
		return http.StatusNotFound
	case KindModelInvocation:
		if e.Reason == ReasonTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindInvalidModelResponse:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request with backoff.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindModelInvocation, KindInvalidModelResponse:
		return true
	default:
		return false
	}
}

// LegacyCode returns the TASK_* code used by earlier clients of the API.
func (e *Error) LegacyCode() string {
	switch e.Kind {
	case KindInvalidRequest, KindUnknownFormIdentifier:
		return "TASK_INVALID_REQUEST"
	case KindModelInvocation:
		return "TASK_LLM_INNER_ERROR"
	case KindInvalidModelResponse:
		return "TASK_INVALID_RESPONSE"
	case KindValidation:
		return "TASK_VALIDATION_ERROR"
	default:
		return "TASK_INTERNAL_ERROR"
	}
}

// NewError creates a new tagged error.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// WithField names the offending field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithReason adds a sub-reason to the error.
func (e *Error) WithReason(reason Reason) *Error {
	e.Reason = reason
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// InvalidRequest creates an InvalidRequest error.
func InvalidRequest(format string, args ...any) *Error {
	return NewError(KindInvalidRequest, fmt.Sprintf(format, args...))
}

// UnknownFormIdentifier creates an UnknownFormIdentifier error for id.
func UnknownFormIdentifier(id string) *Error {
	return NewError(KindUnknownFormIdentifier, fmt.Sprintf("unknown form identifier %q", id))
}

// ModelInvocation creates a ModelInvocationError wrapping err.
func ModelInvocation(reason Reason, err error) *Error {
	return NewError(KindModelInvocation, fmt.Sprintf("model invocation failed: %v", err)).
		WithReason(reason).
		WithCause(err)
}

// InvalidModelResponse creates an InvalidModelResponse error.
func InvalidModelResponse(format string, args ...any) *Error {
	return NewError(KindInvalidModelResponse, fmt.Sprintf(format, args...))
}

// Validation creates a ValidationError for the named field.
func Validation(field, reason string) *Error {
	return NewError(KindValidation, fmt.Sprintf("field %q: %s", field, reason)).WithField(field)
}

// Internal creates an InternalError wrapping err.
func Internal(err error) *Error {
	return NewError(KindInternal, err.Error()).WithCause(err)
}

// AsError extracts a *Error from err's chain. Non-tagged errors are reported
// as InternalError so that callers always see a taxonomy kind.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
