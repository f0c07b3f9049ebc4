// Package domainerrors provides typed domain errors with stable codes.
// Services attach a code when translating infrastructure failures so
// transport layers can map errors to responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"

	// Consent and rights gates.
	CodeConsentRequired Code = "consent_required"
	CodeUnauthorizedUse Code = "unauthorized_usage"

	// Possession protocol.
	CodeSessionNotFound Code = "session_not_found"
	CodeSessionExpired  Code = "session_expired"
	CodeProofInvalid    Code = "proof_invalid"

	// Vault.
	CodeDecryptionFailed Code = "decryption_failed"
)

// Error is a domain error carrying a code, a safe message, and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is treats two domain errors with the same code and message as equal so
// tests can use errors.Is against a freshly constructed expectation.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// Is reports whether err (or anything it wraps) carries the code.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// CodeOf extracts the code from err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return CodeInternal
	}
	return domainErr.Code
}

// ToHTTPStatus maps a domain error to a response status.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound, CodeSessionNotFound:
		return http.StatusNotFound
	case CodeUnauthorized, CodeProofInvalid, CodeDecryptionFailed:
		return http.StatusUnauthorized
	case CodeUnauthorizedUse:
		return http.StatusForbidden
	case CodeConsentRequired:
		return http.StatusPreconditionFailed
	case CodeSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
