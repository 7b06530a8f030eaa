package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Admission failures. Soft outcomes (waitlisted, pending approval) are not
// errors and travel in result payloads instead.
var (
	ErrClassNotFound         = New("CLASS_NOT_FOUND", http.StatusNotFound, "class not found")
	ErrAlreadyEnrolled       = New("ALREADY_ENROLLED", http.StatusConflict, "student already has an active enrollment for this class")
	ErrAlreadyWaitlisted     = New("ALREADY_WAITLISTED", http.StatusConflict, "student already on the waitlist for this class")
	ErrClassFull             = New("CLASS_FULL", http.StatusConflict, "class is at capacity")
	ErrWaitlistFull          = New("WAITLIST_FULL", http.StatusConflict, "class and waitlist are both full")
	ErrWaitlistEntryNotFound = New("WAITLIST_ENTRY_NOT_FOUND", http.StatusNotFound, "waitlist entry not found")
	ErrInvalidTransition     = New("INVALID_TRANSITION", http.StatusConflict, "operation not valid for current state")
	ErrDuplicateRequest      = New("DUPLICATE_REQUEST", http.StatusConflict, "an enrollment request is already pending review")
	ErrPersistence           = New("PERSISTENCE_ERROR", http.StatusInternalServerError, "persistence failure")
)

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Persistence wraps a store failure with the PERSISTENCE_ERROR code so the
// caller's retry policy can distinguish it from business outcomes.
func Persistence(err error, message string) *Error {
	return Wrap(err, ErrPersistence.Code, ErrPersistence.Status, message)
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
