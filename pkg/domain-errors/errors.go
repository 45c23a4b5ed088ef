// Package domainerrors carries typed error codes across service boundaries.
//
// Services return *Error values (optionally wrapping an infrastructure cause) and the
// transport layer translates the code into a status. Callers inspect codes with HasCode
// rather than matching message text.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a failure in terms callers can act on.
type Code string

const (
	// Input problems, detected before any state mutation.
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"

	// Privilege problems.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// Ledger execution outcomes.
	CodeReentrancy      Code = "reentrancy"
	CodeExecutionFailed Code = "execution_failed"

	// Collaborator and lifecycle outcomes.
	CodeInfrastructure Code = "infrastructure_error"
	CodeTimeout        Code = "timeout"
	CodeCanceled       Code = "canceled"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// GetCode returns the code of the outermost *Error in the chain, or CodeInternal.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// ToHTTPStatus maps a code to the HTTP status used by handlers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeReentrancy:
		return http.StatusConflict
	case CodeInfrastructure:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCanceled:
		// nginx convention for a client that went away before the response.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether the code describes a caller mistake.
func IsClientError(code Code) bool {
	status := ToHTTPStatus(code)
	return status >= 400 && status < 500 && code != CodeCanceled
}
