package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"device-reservation-backend/internal/clock"
	"device-reservation-backend/internal/model"
	"device-reservation-backend/internal/parse"
	"device-reservation-backend/internal/store"
)

// Service implements the reservation and usage operations on top of the
// transactional store. All status decisions go through the lifecycle
// functions in the model package; the service never invents a status.
type Service struct {
	store store.Store
	clock clock.Clock
}

// NewService creates a booking service.
func NewService(s store.Store, c clock.Clock) *Service {
	return &Service{store: s, clock: c}
}

// BookRequest carries an already-authenticated, already-normalized booking.
type BookRequest struct {
	DeviceID string
	UserID   int64
	Start    time.Time
	End      time.Time
	Purpose  string
	CallerIP string
}

// Book validates the window, checks for conflicts and persists the
// reservation plus its linked usage record in one transaction. Two
// concurrent calls for overlapping windows on the same device cannot both
// succeed: the conflict check and the insert share a transaction with the
// device row as the lock point.
func (s *Service) Book(ctx context.Context, req BookRequest) (*model.Reservation, error) {
	now := s.clock.Now()
	if !req.End.After(req.Start) || req.Start.Before(now) {
		return nil, ErrInvalidTimeRange
	}

	// New bookings always enter as upcoming, including a start equal to
	// now; the refresh pass promotes them once the window opens.
	reservation := &model.Reservation{
		DeviceID:  req.DeviceID,
		UserID:    req.UserID,
		StartTime: req.Start,
		EndTime:   req.End,
		Purpose:   req.Purpose,
		Status:    model.ReservationUpcoming,
	}

	err := s.store.WithTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.LockDevice(ctx, req.DeviceID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeviceNotFound
			}
			return fmt.Errorf("failed to load device %s: %w", req.DeviceID, err)
		}

		overlapping, err := tx.FindOverlapping(ctx, req.DeviceID, req.Start, req.End, 0)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrConflict
		}

		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}

		usage := &model.UsageRecord{
			DeviceID:      req.DeviceID,
			UserID:        req.UserID,
			ReservationID: &reservation.ID,
			IPAddress:     req.CallerIP,
			IPType:        string(parse.ParseEndpointKind(req.DeviceID)),
			Status:        model.UsageStatusAt(now, &req.Start, nil, nil, ""),
		}
		return tx.CreateUsage(ctx, usage)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Printf("booking conflict: device=%s window=[%s, %s) user=%d",
				req.DeviceID, req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339), req.UserID)
		}
		return nil, err
	}

	log.Printf("booking created: reservation=%d device=%s window=[%s, %s) user=%d",
		reservation.ID, req.DeviceID, req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339), req.UserID)
	return reservation, nil
}

// Cancel marks an upcoming reservation cancelled. Only the owning user or
// an admin may cancel, and only before the window starts. A linked usage
// record that never ended is terminated with reason "cancelled".
func (s *Service) Cancel(ctx context.Context, reservationID, actorUserID int64, actorIsAdmin bool) error {
	now := s.clock.Now()
	return s.store.WithTransaction(ctx, func(tx store.Store) error {
		reservation, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReservationNotFound
			}
			return fmt.Errorf("failed to load reservation %d: %w", reservationID, err)
		}

		if reservation.UserID != actorUserID && !actorIsAdmin {
			return ErrUnauthorized
		}
		if reservation.StatusAt(now) != model.ReservationUpcoming {
			return ErrNotCancellable
		}

		if err := tx.UpdateReservationStatus(ctx, reservationID, model.ReservationCancelled); err != nil {
			return err
		}
		if _, err := tx.TerminateUsageForReservations(ctx, []int64{reservationID}, now, "cancelled"); err != nil {
			return err
		}

		log.Printf("reservation cancelled: reservation=%d actor=%d admin=%t", reservationID, actorUserID, actorIsAdmin)
		return nil
	})
}

// StartUsage opens the usage session linked to a reservation, recording
// the caller address. Fails when the session already started.
func (s *Service) StartUsage(ctx context.Context, reservationID int64, callerIP string) (*model.UsageRecord, error) {
	now := s.clock.Now()
	var started *model.UsageRecord
	err := s.store.WithTransaction(ctx, func(tx store.Store) error {
		usage, err := tx.GetUsageByReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUsageNotFound
			}
			return fmt.Errorf("failed to load usage for reservation %d: %w", reservationID, err)
		}
		if usage.ActualStartTime != nil {
			return ErrAlreadyStarted
		}

		usage.ActualStartTime = &now
		usage.IPAddress = callerIP
		usage.IPType = string(parse.ParseEndpointKind(usage.DeviceID))
		usage.Status = model.UsageStatusAt(now, reservationStart(usage), &now, nil, "")
		if err := tx.SaveUsage(ctx, usage); err != nil {
			return err
		}
		started = usage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// EndUsage closes a session. When terminated is set the record carries the
// termination reason, otherwise it completes normally. A session that
// never started cannot be ended.
func (s *Service) EndUsage(ctx context.Context, reservationID int64, terminated bool, reason string) (*model.UsageRecord, error) {
	now := s.clock.Now()
	var ended *model.UsageRecord
	err := s.store.WithTransaction(ctx, func(tx store.Store) error {
		usage, err := tx.GetUsageByReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUsageNotFound
			}
			return fmt.Errorf("failed to load usage for reservation %d: %w", reservationID, err)
		}
		if usage.ActualEndTime != nil {
			return ErrAlreadyEnded
		}
		if usage.ActualStartTime == nil {
			return ErrNotStarted
		}

		usage.ActualEndTime = &now
		if terminated {
			if reason == "" {
				reason = "manually terminated"
			}
			usage.TerminationReason = reason
		}
		usage.Status = model.UsageStatusAt(now, reservationStart(usage), usage.ActualStartTime, &now, usage.TerminationReason)
		if err := tx.SaveUsage(ctx, usage); err != nil {
			return err
		}
		ended = usage
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

// TerminateActiveSessions force-closes every active session matching the
// optional device/user filter and returns the exact count affected.
func (s *Service) TerminateActiveSessions(ctx context.Context, deviceID string, userID int64, reason string) (int64, error) {
	if reason == "" {
		reason = "system terminated"
	}
	now := s.clock.Now()
	var count int64
	err := s.store.WithTransaction(ctx, func(tx store.Store) error {
		n, err := tx.BulkTerminateUsage(ctx, now, store.UsageFilter{DeviceID: deviceID, UserID: userID}, reason)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("terminated %d active sessions (device=%q user=%d reason=%q)", count, deviceID, userID, reason)
	return count, nil
}

// ListReservations returns reservations with statuses recomputed from the
// wall clock, so a stale persisted status never leaks to the caller.
func (s *Service) ListReservations(ctx context.Context, f store.ReservationFilter) ([]model.Reservation, error) {
	if f.Now.IsZero() {
		f.Now = s.clock.Now()
	}
	reservations, err := s.store.ListReservations(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		reservations[i].Status = reservations[i].StatusAt(f.Now)
	}
	return reservations, nil
}

// DeviceAvailability reports one device's booked/available state for a
// candidate window.
type DeviceAvailability struct {
	Device model.Device
	Booked bool
}

// Availability returns the booked/available status of each device (or a
// single device when deviceID is set) for the half-open window
// [start, end).
func (s *Service) Availability(ctx context.Context, deviceID string, start, end time.Time) ([]DeviceAvailability, error) {
	if !end.After(start) {
		return nil, ErrInvalidTimeRange
	}

	var devices []model.Device
	if deviceID != "" {
		device, err := s.store.GetDevice(ctx, deviceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrDeviceNotFound
			}
			return nil, fmt.Errorf("failed to load device %s: %w", deviceID, err)
		}
		devices = []model.Device{*device}
	} else {
		var err error
		devices, err = s.store.ListDevices(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := make([]DeviceAvailability, 0, len(devices))
	for _, device := range devices {
		overlapping, err := s.store.FindOverlapping(ctx, device.DeviceID, start, end, 0)
		if err != nil {
			return nil, err
		}
		result = append(result, DeviceAvailability{Device: device, Booked: len(overlapping) > 0})
	}
	return result, nil
}

// ListUsage returns usage records with statuses recomputed from the wall
// clock.
func (s *Service) ListUsage(ctx context.Context, f store.UsageFilter) ([]model.UsageRecord, error) {
	records, err := s.store.ListUsage(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range records {
		records[i].Status = records[i].StatusAt(now)
	}
	return records, nil
}

// DeleteUsage removes a usage record. Only admins or the session owner may
// delete.
func (s *Service) DeleteUsage(ctx context.Context, usageID, actorUserID int64, actorIsAdmin bool) error {
	usage, err := s.store.GetUsage(ctx, usageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUsageNotFound
		}
		return fmt.Errorf("failed to load usage record %d: %w", usageID, err)
	}
	if usage.UserID != actorUserID && !actorIsAdmin {
		return ErrUnauthorized
	}
	return s.store.DeleteUsage(ctx, usageID)
}

func reservationStart(u *model.UsageRecord) *time.Time {
	if u.Reservation != nil {
		return &u.Reservation.StartTime
	}
	return nil
}
