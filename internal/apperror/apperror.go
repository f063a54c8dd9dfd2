// Package apperror defines the error taxonomy shared by the identity service
// and its clients.
//
// Every error a caller may need to branch on is a sentinel. Constructors wrap
// the sentinel in an *AppError carrying a human-readable message, so callers
// match with errors.Is and display with Error():
//
//	if errors.Is(err, apperror.ErrConflict) { ... }
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrConfiguration means the server is missing required secrets.
	// It is an operator problem and is never retried automatically.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuth covers empty, expired and unverifiable tokens as well as
	// rejected credentials. Callers only ever see this one kind.
	ErrAuth = errors.New("authentication error")

	// ErrPartialFailure means the credential authority created the identity
	// but the profile write did not complete.
	ErrPartialFailure = errors.New("partial failure")

	// ErrUnavailable means a remote collaborator could not be reached.
	ErrUnavailable = errors.New("service unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Configuration reports which required settings are missing.
func Configuration(missing ...string) *AppError {
	msg := "service is not configured"
	if len(missing) > 0 {
		msg = fmt.Sprintf("service is not configured: missing %s", strings.Join(missing, ", "))
	}
	return &AppError{
		Err:     ErrConfiguration,
		Message: msg,
	}
}

// Unauthorized returns the uniform "please log in again" error.
// The real cause belongs in the server log, not in the message.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: "session is no longer valid, please log in again",
	}
}

// InvalidCredentials is the AuthError returned for a rejected email/password pair.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: "invalid login credentials",
	}
}

// PartialFailure reports that the identity with the given id exists at the
// authority but its profile write must be retried.
func PartialFailure(resource, id string) *AppError {
	return &AppError{
		Err:     ErrPartialFailure,
		Message: fmt.Sprintf("%s %s was created but its profile could not be saved", resource, id),
		Field:   id,
	}
}

// Unavailable reports that a named collaborator could not be reached.
func Unavailable(service string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s is unavailable", service),
	}
}

// Kind returns the machine-readable name of err's category, as used in the
// "error" field of HTTP error bodies. Unknown errors are "internal_error".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrPartialFailure):
		return "partial_failure"
	case errors.Is(err, ErrUnavailable):
		return "authority_unavailable"
	}
	return "internal_error"
}

// FromKind rebuilds an *AppError from a kind name and message, the inverse of
// Kind. Clients use it to turn an HTTP error body back into a typed error.
func FromKind(kind, message string) *AppError {
	var sentinel error
	switch kind {
	case "validation_error":
		sentinel = ErrValidation
	case "not_found":
		sentinel = ErrNotFound
	case "forbidden":
		sentinel = ErrForbidden
	case "conflict":
		sentinel = ErrConflict
	case "configuration_error":
		sentinel = ErrConfiguration
	case "auth_error":
		sentinel = ErrAuth
	case "partial_failure":
		sentinel = ErrPartialFailure
	case "authority_unavailable":
		sentinel = ErrUnavailable
	default:
		sentinel = errors.New(kind)
	}
	if message == "" {
		message = sentinel.Error()
	}
	return &AppError{Err: sentinel, Message: message}
}
