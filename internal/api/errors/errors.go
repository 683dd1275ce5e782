package errors

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "speaker-split/internal/app/errors"
)

// ErrorKind represents different types of API errors
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindQuotaExhausted     ErrorKind = "quota_exhausted"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindConflict           ErrorKind = "conflict"
	KindInternal           ErrorKind = "internal"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindBadRequest         ErrorKind = "bad_request"
)

// APIError represents a structured API error response
type APIError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error kind
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindQuotaExhausted:
		return http.StatusPaymentRequired
	case KindConflict:
		return http.StatusConflict
	case KindBackendUnavailable, KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Message: message,
		Details: fields,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewQuotaExhaustedError creates a quota exhausted error
func NewQuotaExhaustedError(message string) *APIError {
	return &APIError{
		Kind:    KindQuotaExhausted,
		Message: message,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Message: message,
	}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Kind:    KindBadRequest,
		Message: message,
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Kind:    KindServiceUnavailable,
		Message: message,
	}
}

// FromDomain maps domain sentinel errors to their API envelope.
func FromDomain(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}

	switch {
	case errors.Is(err, apperrors.ErrInsufficientCredit):
		return NewQuotaExhaustedError("No credits remaining for this capability this month")
	case errors.Is(err, apperrors.ErrJobNotFound):
		return NewNotFoundError("Job")
	case errors.Is(err, apperrors.ErrLedgerNotFound):
		return NewNotFoundError("Credit ledger")
	case errors.Is(err, apperrors.ErrBackendUnreachable):
		return &APIError{Kind: KindBackendUnavailable, Message: "Processing backend is not reachable"}
	case errors.Is(err, apperrors.ErrBackendRejected):
		return &APIError{Kind: KindBackendUnavailable, Message: "Processing backend rejected the request"}
	case errors.Is(err, apperrors.ErrJobFinalized):
		return &APIError{Kind: KindConflict, Message: "Job already reached a terminal state"}
	default:
		return NewInternalError("Internal server error")
	}
}
