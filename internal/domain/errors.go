package domain

import "errors"

var (
	// ErrValidation marks a missing or malformed user-supplied field.
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("not found")

	// ErrAlreadyReserved is returned when a spot already carries an active
	// reservation.
	ErrAlreadyReserved = errors.New("spot already reserved")

	// ErrStorageUnavailable is returned when the durable favorites backend
	// cannot be read or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBusy is returned when a deferred action of the same kind is still
	// in flight.
	ErrBusy = errors.New("action already in progress")

	ErrNoSession = errors.New("not signed in")
)
