// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	// Validation failures are never retried.
	ErrValidation = errors.New("validation failed")

	// ErrTransientDependency is returned when a dependency (store, bus,
	// notification sender) is temporarily unavailable. Operations failing
	// with this error are retried with backoff up to a ceiling.
	ErrTransientDependency = errors.New("transient dependency failure")

	// ErrPermanentDependency is returned when a dependency rejects an
	// operation in a way that will never succeed on retry, for example an
	// invalid recipient or an exhausted recurrence pattern.
	ErrPermanentDependency = errors.New("permanent dependency failure")

	// ErrConcurrencyConflict is returned when a conditional update or claim
	// loses a race with a concurrent worker. Callers retry once immediately,
	// then back off.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
)

// IsRetryable reports whether an error should be retried by the
// event-consumption layer. Transient dependency failures and concurrency
// conflicts are retryable; validation and permanent failures are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientDependency) ||
		errors.Is(err, ErrConcurrencyConflict)
}
