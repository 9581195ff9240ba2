// Package apperror defines the domain errors shared by every layer.
//
// Layers wrap these with fmt.Errorf("...: %w", err); the HTTP layer maps
// them back to status codes with errors.Is / errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMalformedPayload = errors.New("malformed payload")
)

type AppError struct {
	Err     error             // sentinel, one of the Err* values above
	Message string            // human-readable message
	Field   string            // optional: field causing the error
	Details map[string]string // optional: per-field messages
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

// Invalid returns a validation error carrying one message per offending field.
func Invalid(message string, details map[string]string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Details: details,
	}
}

// Conflict reports a uniqueness violation on resource.field.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %s has already been taken", resource, field),
		Field:   field,
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

// Unauthorized is returned when credentials are missing or wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// MalformedPayload reports a missing sub-structure in an inbound payload.
func MalformedPayload(field string) *AppError {
	return &AppError{
		Err:     ErrMalformedPayload,
		Message: fmt.Sprintf("payload is missing %s", field),
		Field:   field,
	}
}
