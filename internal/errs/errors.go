package errs

import (
	"errors"
	"net/http"
	"strings"
)

// Категории ошибок, которые видит клиент.
var (
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrValidationFailed       = errors.New("validation failed")
	ErrInvalidMessage         = errors.New("invalid message")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrDeliveryFailed         = errors.New("delivery failed")
)

// Причины отказа в аутентификации.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrInvalidIssuer      = errors.New("invalid issuer")
	ErrInvalidAudience    = errors.New("invalid audience")
	ErrTokenExpired       = errors.New("token expired or not valid yet")
	ErrInvalidSubject     = errors.New("invalid subject")
	ErrMissingToken       = errors.New("missing token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Failure is one registration rule that did not hold.
type Failure struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ValidationError carries every failed rule so the client can show all of them at once.
type ValidationError struct {
	Failures []Failure
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Description)
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Add appends a failure and returns the receiver for chaining.
func (e *ValidationError) Add(code, description string) *ValidationError {
	e.Failures = append(e.Failures, Failure{Code: code, Description: description})
	return e
}

// OrNil returns nil when no rule failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}

func ToHTTP(err error) int {
	switch {
	case errors.Is(err, ErrAuthenticationRejected), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the wire name of the error category.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationRejected), errors.Is(err, ErrInvalidCredentials):
		return "AuthenticationRejected"
	case errors.Is(err, ErrValidationFailed):
		return "ValidationFailed"
	case errors.Is(err, ErrInvalidMessage):
		return "InvalidMessage"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	case errors.Is(err, ErrDeliveryFailed):
		return "DeliveryFailed"
	default:
		return "InternalError"
	}
}
