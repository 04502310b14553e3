package idempotency

import "errors"

var (
	// ErrInvalidKey is returned when a caller-supplied idempotency key
	// fails validation. Surfaced to the HTTP layer as a client error.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrInvalidStatusCode is returned when a stored status code falls
	// outside the valid HTTP range. Indicates storage corruption.
	ErrInvalidStatusCode = errors.New("invalid response status code")

	// ErrDuplicateKey is returned by Store.Save when a row already exists
	// for the (caller, key) pair. Handled internally by the Coordinator.
	ErrDuplicateKey = errors.New("idempotency key already recorded")

	// ErrUnexpected is returned when the coordinator loses the insert race
	// but the winning row never becomes visible. The caller may retry.
	ErrUnexpected = errors.New("unexpected idempotency state")
)
