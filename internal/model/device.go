package model

import "time"

// Device represents a physical lab device available for reservation.
// The identifier is assigned by the lab admin and never changes; the
// endpoint addresses of the attached sub-components may be re-pointed
// by the admin tooling.
type Device struct {
	DeviceID     string    `gorm:"primaryKey;size:50" json:"device_id"`
	PCIP         string    `gorm:"column:pc_ip;size:45" json:"pc_ip"`
	RutomatrixIP string    `gorm:"column:rutomatrix_ip;size:45" json:"rutomatrix_ip"`
	Pulse1IP     string    `gorm:"column:pulse1_ip;size:45" json:"pulse1_ip"`
	CT1IP        string    `gorm:"column:ct1_ip;size:45" json:"ct1_ip"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`

	// Associations
	Reservations []Reservation `gorm:"foreignKey:DeviceID" json:"-"`
}
