package domain

import "errors"

var (
	ErrResourceNotFound     = errors.New("resource not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrResourceExhausted    = errors.New("resource exhausted")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidState         = errors.New("invalid state")
	ErrSignatureMismatch    = errors.New("signature mismatch")
	ErrInvalidInput         = errors.New("invalid input")
	ErrAlreadyExists        = errors.New("already exists")

	// ErrTransactionConflict is reported by a store when a commit loses a race
	// against a concurrent writer. It never leaves the storage package on its own.
	ErrTransactionConflict = errors.New("transaction conflict")
	// ErrUnavailable replaces ErrTransactionConflict once retries are exhausted.
	ErrUnavailable = errors.New("unavailable")
)

// IsNotFound reports whether err refers to a missing entity of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrRegistrationNotFound)
}
