package reaper

import (
	"context"
	"log"
	"time"

	"device-reservation-backend/internal/clock"
	"device-reservation-backend/internal/store"
)

// Notifier receives device IDs whose reservations were reaped so
// interested subscribers can be told the device is free again. The
// notification worker pool satisfies this.
type Notifier interface {
	Dispatch(deviceID string)
}

// Reaper sweeps the store for reservations and usage sessions past their
// end time and reconciles their status. It never deletes on expiry; hard
// deletion happens only in the slower retention pass.
type Reaper struct {
	store     store.Store
	clock     clock.Clock
	retention time.Duration
	notifier  Notifier
}

// New creates a Reaper. retention bounds how long expired and cancelled
// reservations are kept before the archival pass deletes them; zero
// disables purging. notifier may be nil.
func New(s store.Store, c clock.Clock, retention time.Duration, notifier Notifier) *Reaper {
	return &Reaper{store: s, clock: c, retention: retention, notifier: notifier}
}

// Reap transitions every reservation whose window has passed out of the
// active set and terminates any linked usage session that never ended,
// with reason "expired". The expiry and the usage termination share one
// transaction, so a reservation being created concurrently is either
// fully visible or not at all. Reaping twice with no intervening writes
// is a no-op the second time.
func (r *Reaper) Reap(ctx context.Context) (store.ReapResult, error) {
	now := r.clock.Now()
	var result store.ReapResult
	var reapedDevices []string

	err := r.store.WithTransaction(ctx, func(tx store.Store) error {
		ended, err := tx.ExpireEndedReservations(ctx, now)
		if err != nil {
			return err
		}
		result.ReservationsReaped = int64(len(ended))

		ids := make([]int64, len(ended))
		seen := make(map[string]bool, len(ended))
		for i, res := range ended {
			ids[i] = res.ID
			if r.notifier != nil && !seen[res.DeviceID] {
				seen[res.DeviceID] = true
				reapedDevices = append(reapedDevices, res.DeviceID)
			}
		}

		terminated, err := tx.TerminateUsageForReservations(ctx, ids, now, "expired")
		if err != nil {
			return err
		}
		result.UsageTerminated = terminated
		return nil
	})
	if err != nil {
		return store.ReapResult{}, err
	}

	// Dispatch outside the transaction so a slow subscriber cannot hold
	// the store lock.
	for _, deviceID := range reapedDevices {
		r.notifier.Dispatch(deviceID)
	}

	if result.ReservationsReaped > 0 || result.UsageTerminated > 0 {
		log.Printf("reap cycle: reservations_expired=%d usage_terminated=%d",
			result.ReservationsReaped, result.UsageTerminated)
	}
	return result, nil
}

// Refresh recomputes every reservation and usage status from the wall
// clock, returning the number of rows that changed.
func (r *Reaper) Refresh(ctx context.Context) (int64, error) {
	return r.store.RefreshStatuses(ctx, r.clock.Now())
}

// Purge is the archival pass: it hard-deletes expired and cancelled
// reservations past the retention window, along with old closed usage
// records.
func (r *Reaper) Purge(ctx context.Context) (int64, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	cutoff := r.clock.Now().Add(-r.retention)
	reservations, err := r.store.PurgeReservationsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	usage, err := r.store.PurgeUsageBefore(ctx, cutoff)
	if err != nil {
		return reservations, err
	}
	if reservations > 0 || usage > 0 {
		log.Printf("retention purge: reservations=%d usage=%d (cutoff=%s)",
			reservations, usage, cutoff.Format(time.RFC3339))
	}
	return reservations + usage, nil
}
