package zipcheck

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("zipcheck: no store configured")
	ErrStoreClosed     = errors.New("zipcheck: store closed")
	ErrMigrationFailed = errors.New("zipcheck: migration failed")

	// Not found errors.
	ErrJobNotFound    = errors.New("zipcheck: job not found")
	ErrOutputNotFound = errors.New("zipcheck: output not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("zipcheck: job already exists")
	ErrDuplicateIdemKey = errors.New("zipcheck: idempotency key already active")

	// State errors.
	ErrInvalidState = errors.New("zipcheck: invalid state transition")
	ErrJobCanceled  = errors.New("zipcheck: job canceled")

	// Configuration errors.
	ErrNoProvider   = errors.New("zipcheck: no provider configured")
	ErrModelUnknown = errors.New("zipcheck: unknown model")
)
