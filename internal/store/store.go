package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"device-reservation-backend/internal/model"
)

// Store defines the repository interface for all reservation and usage
// persistence. Multi-step read-modify-write sequences must run through
// WithTransaction so the overlap and lifecycle invariants hold under
// concurrent writers.
type Store interface {
	DB() *gorm.DB
	WithTransaction(ctx context.Context, fn func(tx Store) error) error

	GetDevice(ctx context.Context, deviceID string) (*model.Device, error)
	LockDevice(ctx context.Context, deviceID string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)

	FindOverlapping(ctx context.Context, deviceID string, start, end time.Time, excludeReservationID int64) ([]model.Reservation, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id int64, status model.ReservationStatus) error

	CreateUsage(ctx context.Context, u *model.UsageRecord) error
	GetUsage(ctx context.Context, id int64) (*model.UsageRecord, error)
	GetUsageByReservation(ctx context.Context, reservationID int64) (*model.UsageRecord, error)
	ListUsage(ctx context.Context, f UsageFilter) ([]model.UsageRecord, error)
	SaveUsage(ctx context.Context, u *model.UsageRecord) error
	DeleteUsage(ctx context.Context, id int64) error
	BulkTerminateUsage(ctx context.Context, now time.Time, f UsageFilter, reason string) (int64, error)

	ExpireEndedReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
	TerminateUsageForReservations(ctx context.Context, reservationIDs []int64, now time.Time, reason string) (int64, error)
	RefreshStatuses(ctx context.Context, now time.Time) (int64, error)
	PurgeReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeUsageBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for read-only query composition in
// handlers and tests.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// WithTransaction runs fn against a store bound to a single transaction.
// Any error from fn rolls the whole transaction back.
func (s *gormStore) WithTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).First(&device, "device_id = ?", deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// LockDevice fetches the device row with an exclusive row lock, making the
// device the serialization point for concurrent bookings on it. SQLite has
// no FOR UPDATE but serializes writers on its own, so the clause is only
// applied on postgres.
func (s *gormStore) LockDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	q := s.db.WithContext(ctx)
	if s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var device model.Device
	if err := q.First(&device, "device_id = ?", deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Order("device_id").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// FindOverlapping returns reservations on the device whose half-open
// window intersects [start, end). Only upcoming and active reservations
// participate; cancelled and expired ones never block a booking.
func (s *gormStore) FindOverlapping(ctx context.Context, deviceID string, start, end time.Time, excludeReservationID int64) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Where("status IN ?", model.ActiveStatuses).
		Where("start_time < ? AND end_time > ?", end, start)
	if excludeReservationID > 0 {
		q = q.Where("id <> ?", excludeReservationID)
	}
	var overlapping []model.Reservation
	if err := q.Find(&overlapping).Error; err != nil {
		return nil, fmt.Errorf("failed to query overlapping reservations: %w", err)
	}
	return overlapping, nil
}

func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Preload("Device").First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *gormStore) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Preload("Device").Order("start_time ASC")
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}

	// Time-window filters compose with OR, mirroring the dashboard's
	// show_active / show_upcoming / show_expired toggles.
	if !f.Now.IsZero() && (f.ShowActive || f.ShowUpcoming || f.ShowExpired) {
		var cond *gorm.DB
		or := func(query string, args ...any) {
			if cond == nil {
				cond = s.db.Where(query, args...)
			} else {
				cond = cond.Or(query, args...)
			}
		}
		if f.ShowActive {
			or("start_time <= ? AND end_time >= ?", f.Now, f.Now)
		}
		if f.ShowUpcoming {
			or("start_time > ?", f.Now)
		}
		if f.ShowExpired {
			or("end_time < ?", f.Now)
		}
		q = q.Where(cond)
	}

	var reservations []model.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

func (s *gormStore) UpdateReservationStatus(ctx context.Context, id int64, status model.ReservationStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) CreateUsage(ctx context.Context, u *model.UsageRecord) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

func (s *gormStore) GetUsage(ctx context.Context, id int64) (*model.UsageRecord, error) {
	var u model.UsageRecord
	if err := s.db.WithContext(ctx).Preload("Reservation").Preload("Device").First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) GetUsageByReservation(ctx context.Context, reservationID int64) (*model.UsageRecord, error) {
	var u model.UsageRecord
	err := s.db.WithContext(ctx).Preload("Reservation").Preload("Device").
		First(&u, "reservation_id = ?", reservationID).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) ListUsage(ctx context.Context, f UsageFilter) ([]model.UsageRecord, error) {
	q := s.db.WithContext(ctx).Preload("Reservation").Preload("Device").
		Order("actual_start_time DESC")
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ActiveOnly {
		q = q.Where("actual_start_time IS NOT NULL AND actual_end_time IS NULL")
	}
	var records []model.UsageRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

func (s *gormStore) SaveUsage(ctx context.Context, u *model.UsageRecord) error {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("failed to save usage record %d: %w", u.ID, err)
	}
	return nil
}

func (s *gormStore) DeleteUsage(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.UsageRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete usage record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BulkTerminateUsage closes every open session matching the filter in one
// statement so the returned count is exact under concurrent starts/ends.
func (s *gormStore) BulkTerminateUsage(ctx context.Context, now time.Time, f UsageFilter, reason string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("actual_start_time IS NOT NULL AND actual_end_time IS NULL")
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	res := q.Updates(map[string]any{
		"actual_end_time":    now,
		"status":             model.UsageTerminated,
		"termination_reason": reason,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to bulk terminate usage: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpireEndedReservations marks every reservation whose window has passed
// as expired and returns the affected rows. Cancelled reservations are
// left alone. Running it again with no intervening writes affects zero
// rows.
func (s *gormStore) ExpireEndedReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var ended []model.Reservation
	err := s.db.WithContext(ctx).
		Where("end_time < ?", now).
		Where("status IN ?", model.ActiveStatuses).
		Find(&ended).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find ended reservations: %w", err)
	}
	if len(ended) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(ended))
	for i, r := range ended {
		ids[i] = r.ID
	}
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id IN ?", ids).
		Update("status", model.ReservationExpired)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to expire reservations: %w", res.Error)
	}
	return ended, nil
}

// TerminateUsageForReservations closes any usage record linked to the
// given reservations that is still missing an end time.
func (s *gormStore) TerminateUsageForReservations(ctx context.Context, reservationIDs []int64, now time.Time, reason string) (int64, error) {
	if len(reservationIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("reservation_id IN ?", reservationIDs).
		Where("actual_end_time IS NULL").
		Updates(map[string]any{
			"actual_end_time":    now,
			"status":             model.UsageTerminated,
			"termination_reason": reason,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to terminate usage for reaped reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RefreshStatuses recomputes every persisted status from the wall clock
// using the lifecycle functions and writes back only the rows that
// changed. Returns the number of rows updated.
func (s *gormStore) RefreshStatuses(ctx context.Context, now time.Time) (int64, error) {
	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservations []model.Reservation
		if err := tx.Where("status IN ?", model.ActiveStatuses).Find(&reservations).Error; err != nil {
			return fmt.Errorf("failed to load reservations for refresh: %w", err)
		}
		for _, r := range reservations {
			next := r.StatusAt(now)
			if next == r.Status {
				continue
			}
			if err := tx.Model(&model.Reservation{}).Where("id = ?", r.ID).Update("status", next).Error; err != nil {
				return fmt.Errorf("failed to refresh reservation %d: %w", r.ID, err)
			}
			changed++
		}

		var records []model.UsageRecord
		if err := tx.Preload("Reservation").
			Where("status IN ?", []model.UsageStatus{model.UsagePending, model.UsageUpcoming, model.UsageActive}).
			Find(&records).Error; err != nil {
			return fmt.Errorf("failed to load usage records for refresh: %w", err)
		}
		for _, u := range records {
			next := u.StatusAt(now)
			if next == u.Status {
				continue
			}
			if err := tx.Model(&model.UsageRecord{}).Where("id = ?", u.ID).Update("status", next).Error; err != nil {
				return fmt.Errorf("failed to refresh usage record %d: %w", u.ID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// PurgeReservationsBefore hard-deletes reservations that already left the
// active set and whose window ended before the cutoff. This is the slow
// archival pass; expiry itself is only a status transition.
func (s *gormStore) PurgeReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ?", []model.ReservationStatus{model.ReservationExpired, model.ReservationCancelled}).
		Where("end_time < ?", cutoff).
		Delete(&model.Reservation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeUsageBefore hard-deletes closed usage records that started before
// the cutoff.
func (s *gormStore) PurgeUsageBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("actual_start_time IS NOT NULL AND actual_start_time < ?", cutoff).
		Where("actual_end_time IS NOT NULL").
		Delete(&model.UsageRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge usage records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
