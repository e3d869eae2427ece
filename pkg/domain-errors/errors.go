package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies domain errors so transport layers can map them to HTTP
// statuses and OAuth error bodies without string matching.
type Code string

const (
	CodeInvalidRequest    Code = "invalid_request"
	CodeInvalidClient     Code = "invalid_client"
	CodeInvalidGrant      Code = "invalid_grant"
	CodeAccessDenied      Code = "access_denied"
	CodeUnauthorized      Code = "unauthorized"
	CodeNotFound          Code = "not_found"
	CodeInternal          Code = "internal"
	CodeSecurityViolation Code = "security_violation"
)

// Error carries a code alongside the message so callers can branch on the
// class of failure while keeping the human-readable context.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// un-coded errors so unknown failures never map to a 4xx.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the transport layer should return.
// Security violations intentionally surface as a plain 400: the response must
// not reveal which check failed.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeInvalidClient, CodeInvalidGrant:
		return http.StatusBadRequest
	case CodeAccessDenied, CodeSecurityViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToOAuthCode maps a code to the RFC 6749 error string written in JSON
// responses. Internal and security codes collapse to server_error so the
// browser-facing body stays generic.
func ToOAuthCode(code Code) string {
	switch code {
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeInvalidClient:
		return "invalid_client"
	case CodeInvalidGrant:
		return "invalid_grant"
	case CodeAccessDenied, CodeSecurityViolation:
		return "access_denied"
	case CodeUnauthorized:
		return "unauthorized_client"
	default:
		return "server_error"
	}
}
