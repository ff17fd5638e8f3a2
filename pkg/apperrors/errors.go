// Package apperrors defines the error kinds shared by every docket service.
//
// Services wrap one of the sentinels below with detail text so that callers
// (and the HTTP layer) can classify a failure with errors.Is without parsing
// messages.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when input is malformed or missing
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a uniqueness or reference constraint is violated
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when an entity is absent or outside the caller's scope
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller has no valid identity or is not permitted
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated caller lacks a required permission.
	// It wraps ErrUnauthorized so both belong to the same class.
	ErrForbidden = fmt.Errorf("%w: forbidden", ErrUnauthorized)

	// ErrConfiguration is returned when required bootstrap data or settings are missing
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstream is returned when an external collaborator (object store, signer) fails
	ErrUpstream = errors.New("upstream failure")
)

// IsValidation checks if the error is or wraps ErrValidation
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is or wraps ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound checks if the error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if the error is or wraps ErrUnauthorized (including ErrForbidden)
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if the error is or wraps ErrForbidden
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConfiguration checks if the error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsUpstream checks if the error is or wraps ErrUpstream
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// Validation creates a validation error with context
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict creates a conflict error with context
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFound creates a not found error naming the missing entity
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Configuration creates a configuration error with context
func Configuration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Upstream wraps a collaborator failure. The original error stays reachable via errors.Unwrap chains.
func Upstream(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, cause)
}
