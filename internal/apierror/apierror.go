// Package apierror carries domain failures from the session flows to the
// transport boundary, where they are serialized into the wire envelope.
package apierror

import (
	"errors"
	"net/http"
)

// Error is the uniform failure carrier for all domain-level rejections.
type Error struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Details    []string `json:"errors,omitempty"`
}

// Error implements the error interface.
func (apiError *Error) Error() string {
	return apiError.Message
}

// BadRequest builds a 400 validation failure.
func BadRequest(message string, details ...string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Message: message, Details: details}
}

// Unauthorized builds a 401 authentication failure.
func Unauthorized(message string) *Error {
	return &Error{StatusCode: http.StatusUnauthorized, Message: message}
}

// NotFound builds a 404 lookup failure.
func NotFound(message string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Message: message}
}

// Internal builds a 500 collaborator or internal failure. The message is
// surfaced to clients, so callers must pass a safe, non-leaking description.
func Internal(message string) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Message: message}
}

// From extracts the carrier from an error chain. The boolean reports whether
// the chain contained a recognized carrier; unexpected failures return false
// and must be mapped to a generic 500 by the caller.
func From(err error) (*Error, bool) {
	var apiError *Error
	if errors.As(err, &apiError) && apiError != nil {
		return apiError, true
	}
	return nil, false
}
