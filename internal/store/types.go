package store

import (
	"time"

	"device-reservation-backend/internal/model"
)

// ReservationFilter narrows reservation queries. Zero values mean "any".
type ReservationFilter struct {
	DeviceID     string
	UserID       int64
	Statuses     []model.ReservationStatus
	ShowExpired  bool
	ShowUpcoming bool
	ShowActive   bool
	Now          time.Time
}

// UsageFilter narrows usage-record queries. Zero values mean "any".
type UsageFilter struct {
	DeviceID   string
	UserID     int64
	ActiveOnly bool
}

// ReapResult reports the effect of one expiry sweep.
type ReapResult struct {
	ReservationsReaped int64
	UsageTerminated    int64
}
