package booking

import "errors"

// Sentinel errors returned by the booking service. Callers map these to
// user-facing responses with errors.Is; anything else is a persistence
// failure.
var (
	ErrInvalidTimeRange    = errors.New("end time must be after start time and start must not be in the past")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUsageNotFound       = errors.New("usage record not found")
	ErrConflict            = errors.New("device already reserved for this time period")
	ErrAlreadyStarted      = errors.New("usage session already started")
	ErrAlreadyEnded        = errors.New("usage session already ended")
	ErrNotStarted          = errors.New("usage session never started")
	ErrNotCancellable      = errors.New("only upcoming reservations can be cancelled")
	ErrUnauthorized        = errors.New("not allowed to manage this reservation")
)
