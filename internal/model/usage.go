package model

import "time"

// UsageStatus is the lifecycle state of a usage record.
type UsageStatus string

const (
	UsagePending    UsageStatus = "pending"
	UsageUpcoming   UsageStatus = "upcoming"
	UsageActive     UsageStatus = "active"
	UsageCompleted  UsageStatus = "completed"
	UsageTerminated UsageStatus = "terminated"
)

// UsageRecord tracks an actual usage session on a device. A record is
// created eagerly alongside a reservation, but may also exist on its own
// for ad hoc sessions. ActualStartTime/ActualEndTime are null until the
// session really starts/ends.
type UsageRecord struct {
	ID                int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID          string      `gorm:"index;size:50;not null" json:"device_id"`
	UserID            int64       `gorm:"index;not null" json:"user_id"`
	ReservationID     *int64      `gorm:"index" json:"reservation_id,omitempty"`
	ActualStartTime   *time.Time  `json:"actual_start_time,omitempty"`
	ActualEndTime     *time.Time  `json:"actual_end_time,omitempty"`
	IPAddress         string      `gorm:"size:45" json:"ip_address,omitempty"`
	IPType            string      `gorm:"size:20" json:"ip_type,omitempty"`
	Status            UsageStatus `gorm:"size:20;not null;default:pending" json:"status"`
	TerminationReason string      `gorm:"size:100" json:"termination_reason,omitempty"`
	CreatedAt         time.Time   `json:"-"`
	UpdatedAt         time.Time   `json:"-"`

	// Associations
	Device      Device       `gorm:"foreignKey:DeviceID;references:DeviceID" json:"-"`
	Reservation *Reservation `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE" json:"-"`
}

// UsageStatusAt recomputes a usage record's status. The result is a pure
// function of the clock, the parent reservation's start (nil when the
// record is unlinked), the actual session timestamps, and the termination
// reason. Invariant: active implies a null end time, completed/terminated
// imply a set end time.
func UsageStatusAt(now time.Time, reservationStart *time.Time, actualStart, actualEnd *time.Time, terminationReason string) UsageStatus {
	switch {
	case actualEnd != nil && terminationReason != "":
		return UsageTerminated
	case actualEnd != nil:
		return UsageCompleted
	case actualStart != nil:
		return UsageActive
	case reservationStart != nil && reservationStart.After(now):
		return UsageUpcoming
	default:
		return UsagePending
	}
}

// StatusAt returns the record's status as of the given instant. The parent
// reservation must be preloaded for the upcoming state to be derivable.
func (u *UsageRecord) StatusAt(now time.Time) UsageStatus {
	var reservationStart *time.Time
	if u.Reservation != nil {
		reservationStart = &u.Reservation.StartTime
	}
	return UsageStatusAt(now, reservationStart, u.ActualStartTime, u.ActualEndTime, u.TerminationReason)
}

// Duration returns the elapsed session length in seconds, or zero when the
// session has not both started and ended.
func (u *UsageRecord) Duration() float64 {
	if u.ActualStartTime == nil || u.ActualEndTime == nil {
		return 0
	}
	return u.ActualEndTime.Sub(*u.ActualStartTime).Seconds()
}
