package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to callers.
const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied       = "PERMISSION_DENIED"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConflict               = "CONFLICT"
	CodeStoreFailure           = "STORE_FAILURE"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewAuthenticationRequired(message string) error {
	return NewDomainError(CodeAuthenticationRequired, message, http.StatusUnauthorized, nil)
}

func NewPermissionDenied(operation string) error {
	return NewDomainError(CodePermissionDenied, "insufficient role for "+operation, http.StatusForbidden,
		map[string]any{"operation": operation})
}

// NewValidationError carries a field -> message map in its details.
func NewValidationError(message string, fields map[string]string) error {
	details := make(map[string]any, len(fields))
	for field, msg := range fields {
		details[field] = msg
	}
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusConflict, details)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewStoreFailure wraps a persistence error; errors.Is still reaches err.
func NewStoreFailure(err error) error {
	return &DomainError{
		Code:       CodeStoreFailure,
		Message:    "ticket store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// FieldMessages returns the validation details of err as strings.
func FieldMessages(err error) map[string]string {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != CodeValidationFailed {
		return nil
	}
	out := make(map[string]string, len(domainErr.Details))
	for field, msg := range domainErr.Details {
		if s, ok := msg.(string); ok {
			out[field] = s
		}
	}
	return out
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
