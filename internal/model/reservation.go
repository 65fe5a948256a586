package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationUpcoming  ReservationStatus = "upcoming"
	ReservationActive    ReservationStatus = "active"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is an exclusive time window booked on a device by a user.
// Start and end times are persisted in the canonical timezone and form a
// half-open interval [StartTime, EndTime).
type Reservation struct {
	ID        int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID  string            `gorm:"index;size:50;not null" json:"device_id"`
	UserID    int64             `gorm:"index;not null" json:"user_id"`
	StartTime time.Time         `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time         `gorm:"not null;index" json:"end_time"`
	Purpose   string            `gorm:"size:200" json:"purpose"`
	Status    ReservationStatus `gorm:"size:20;not null;default:upcoming" json:"status"`
	CreatedAt time.Time         `json:"-"`
	UpdatedAt time.Time         `json:"-"`

	// Associations
	Device Device `gorm:"foreignKey:DeviceID;references:DeviceID;constraint:OnDelete:CASCADE" json:"-"`
}

// ActiveStatuses are the reservation states that participate in conflict
// detection. Cancelled and expired windows never block a new booking.
var ActiveStatuses = []ReservationStatus{ReservationUpcoming, ReservationActive}

// ReservationStatusAt recomputes a reservation's status from the wall
// clock. Cancellation is terminal and wins over any time-derived state.
func ReservationStatusAt(now time.Time, start, end time.Time, cancelled bool) ReservationStatus {
	switch {
	case cancelled:
		return ReservationCancelled
	case now.After(end):
		return ReservationExpired
	case now.Before(start):
		return ReservationUpcoming
	default:
		return ReservationActive
	}
}

// StatusAt returns the reservation's status as of the given instant.
func (r *Reservation) StatusAt(now time.Time) ReservationStatus {
	return ReservationStatusAt(now, r.StartTime, r.EndTime, r.Status == ReservationCancelled)
}

// Overlaps reports whether the half-open window [start, end) intersects
// this reservation's window. Back-to-back windows do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}
