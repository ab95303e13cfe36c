package services

import "errors"

var (
	// ErrConcurrencyConflict is returned when another mutation is already
	// running for the same (user, instrument). Callers should retry.
	ErrConcurrencyConflict = errors.New("concurrent modification of instrument")

	// ErrInvalidTransaction is returned when a transaction fails validation
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidPeriod is returned for an unrecognized history period
	ErrInvalidPeriod = errors.New("invalid history period")
)
