// Package apperr defines the closed set of error kinds the service exposes.
// Every error that crosses a workflow boundary carries one of these kinds;
// the transport layer maps each kind to a fixed HTTP status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// BadRequest marks malformed or invalid caller input. Never retried.
	BadRequest Kind = iota + 1
	// Unauthorized marks a missing, invalid, or expired credential.
	Unauthorized
	// PermissionDenied marks an authorization failure for a valid credential.
	PermissionDenied
	// NotFound marks a referenced entity that does not exist. Never retried.
	NotFound
	// ExternalService marks a failure status returned by the remote media
	// API. The caller may retry the whole workflow, not individual steps.
	ExternalService
	// Internal marks an unexpected condition: poll-budget exhaustion, a
	// missing field in a terminal payload, a signing failure, or any
	// unclassified error surfacing at a workflow boundary.
	Internal
)

// Status returns the HTTP status code associated with the kind.
func (k Kind) Status() int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case ExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DefaultMessage returns the user-facing message used when a call site does
// not supply its own.
func (k Kind) DefaultMessage() string {
	switch k {
	case BadRequest:
		return "bad request"
	case Unauthorized:
		return "unauthorized"
	case PermissionDenied:
		return "permission not granted"
	case NotFound:
		return "not found"
	case ExternalService:
		return "external service error"
	default:
		return "internal server error"
	}
}

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case ExternalService:
		return "external_service"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a classified application error. Message is user-facing; Err holds
// the wrapped cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.DefaultMessage()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a call-site message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error without discarding its chain.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Wrapf classifies an existing error and attaches a message.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the provided kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Internalize returns err unchanged when it is already classified, otherwise
// wraps it as Internal. Workflow boundaries use this so callers never see raw
// internal error types.
func Internalize(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(Internal, err)
}

// Status maps err to the HTTP status code for its kind, defaulting to 500 for
// unclassified errors.
func Status(err error) int {
	if kind, ok := KindOf(err); ok {
		return kind.Status()
	}
	return http.StatusInternalServerError
}

// UserMessage extracts the message safe to return to a caller. Unclassified
// errors collapse to the generic internal message.
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		if appErr.Message != "" {
			return appErr.Message
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
		return appErr.Kind.DefaultMessage()
	}
	return Internal.DefaultMessage()
}
