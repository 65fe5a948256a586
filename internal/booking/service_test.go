package booking

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"device-reservation-backend/internal/clock"
	"device-reservation-backend/internal/model"
	"device-reservation-backend/internal/store"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// newTestService wires a Service to an in-memory SQLite store and a
// controllable clock pinned to t0.
func newTestService(t *testing.T) (*Service, store.Store, *clock.Fake) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Device{},
		&model.Reservation{},
		&model.UsageRecord{},
	))
	require.NoError(t, db.Create(&model.Device{
		DeviceID: "dev-01", PCIP: "10.0.0.1", RutomatrixIP: "10.0.0.2",
	}).Error)
	require.NoError(t, db.Create(&model.Device{DeviceID: "dev-02", PCIP: "10.0.0.9"}).Error)

	s := store.NewGormStore(db)
	fake := clock.NewFake(t0)
	return NewService(s, fake), s, fake
}

func mustBook(t *testing.T, svc *Service, req BookRequest) *model.Reservation {
	t.Helper()
	r, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	return r
}

func TestBook(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newTestService(t)

	first := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
		Purpose: "firmware flashing", CallerIP: "192.168.1.10",
	})
	assert.Equal(t, model.ReservationUpcoming, first.Status)

	t.Run("overlapping window on same device conflicts", func(t *testing.T) {
		_, err := svc.Book(ctx, BookRequest{
			DeviceID: "dev-01", UserID: 2,
			Start: t0.Add(90 * time.Minute), End: t0.Add(105 * time.Minute),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("back-to-back window succeeds", func(t *testing.T) {
		r, err := svc.Book(ctx, BookRequest{
			DeviceID: "dev-01", UserID: 2,
			Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, model.ReservationUpcoming, r.Status)
	})

	t.Run("same window on another device succeeds", func(t *testing.T) {
		_, err := svc.Book(ctx, BookRequest{
			DeviceID: "dev-02", UserID: 2,
			Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
		})
		assert.NoError(t, err)
	})

	t.Run("usage record is created alongside", func(t *testing.T) {
		usage, err := s.GetUsageByReservation(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, model.UsageUpcoming, usage.Status)
		assert.Nil(t, usage.ActualStartTime)
		assert.Nil(t, usage.ActualEndTime)
		assert.Equal(t, "pc", usage.IPType)
		assert.Equal(t, "192.168.1.10", usage.IPAddress)
	})
}

func TestBookAtWindowStartIsUpcoming(t *testing.T) {
	svc, _, _ := newTestService(t)

	// A start exactly at now is the earliest window the validation
	// accepts; it still books as upcoming.
	r, err := svc.Book(context.Background(), BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0, End: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationUpcoming, r.Status)
}

func TestBookConcurrentOverlap(t *testing.T) {
	// A file-backed database with a real connection pool, so the two
	// bookings genuinely race instead of queueing on one handle.
	path := filepath.Join(t.TempDir(), "reservations.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Device{},
		&model.Reservation{},
		&model.UsageRecord{},
	))
	require.NoError(t, db.Create(&model.Device{DeviceID: "dev-01"}).Error)

	svc := NewService(store.NewGormStore(db), clock.NewFake(t0))

	// Both goroutines book the identical window from behind a barrier;
	// the transaction around the conflict check must let exactly one
	// through.
	barrier := make(chan struct{})
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-barrier
			_, err := svc.Book(context.Background(), BookRequest{
				DeviceID: "dev-01", UserID: userID,
				Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
			})
			results <- err
		}(int64(i + 1))
	}
	close(barrier)
	wg.Wait()
	close(results)

	var booked, conflicted int
	for err := range results {
		switch {
		case err == nil:
			booked++
		case errors.Is(err, ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, booked, "exactly one booking must win")
	assert.Equal(t, 1, conflicted, "the loser must see the conflict error")

	var count int64
	db.Model(&model.Reservation{}).Count(&count)
	assert.Equal(t, int64(1), count, "only the winner's row may be persisted")
}

func TestBookRejectsBadWindows(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	testCases := []struct {
		name       string
		start, end time.Time
	}{
		{"end before start", t0.Add(2 * time.Hour), t0.Add(time.Hour)},
		{"zero-length window", t0.Add(time.Hour), t0.Add(time.Hour)},
		{"start in the past", t0.Add(-time.Minute), t0.Add(time.Hour)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, BookRequest{
				DeviceID: "dev-01", UserID: 1, Start: tc.start, End: tc.end,
			})
			assert.ErrorIs(t, err, ErrInvalidTimeRange)
		})
	}
}

func TestBookUnknownDevice(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Book(context.Background(), BookRequest{
		DeviceID: "dev-99", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	svc, s, fake := newTestService(t)

	r := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})

	t.Run("stranger cannot cancel", func(t *testing.T) {
		err := svc.Cancel(ctx, r.ID, 99, false)
		assert.ErrorIs(t, err, ErrUnauthorized)

		stored, err := s.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationUpcoming, stored.Status)
	})

	t.Run("owner cancels and linked usage is terminated", func(t *testing.T) {
		require.NoError(t, svc.Cancel(ctx, r.ID, 1, false))

		stored, err := s.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationCancelled, stored.Status)

		usage, err := s.GetUsageByReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.UsageTerminated, usage.Status)
		assert.Equal(t, "cancelled", usage.TerminationReason)
		require.NotNil(t, usage.ActualEndTime)
	})

	t.Run("cancelled window no longer blocks", func(t *testing.T) {
		_, err := svc.Book(ctx, BookRequest{
			DeviceID: "dev-01", UserID: 2,
			Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
		})
		assert.NoError(t, err)
	})

	t.Run("active reservation cannot be cancelled", func(t *testing.T) {
		other := mustBook(t, svc, BookRequest{
			DeviceID: "dev-02", UserID: 1,
			Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
		})
		fake.Set(t0.Add(90 * time.Minute))
		err := svc.Cancel(ctx, other.ID, 1, false)
		assert.ErrorIs(t, err, ErrNotCancellable)
	})

	t.Run("missing reservation", func(t *testing.T) {
		err := svc.Cancel(ctx, 424242, 1, true)
		assert.ErrorIs(t, err, ErrReservationNotFound)
	})
}

func TestCancelByAdmin(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newTestService(t)

	r := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	require.NoError(t, svc.Cancel(ctx, r.ID, 99, true))

	stored, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, stored.Status)
}

func TestStartAndEndUsage(t *testing.T) {
	ctx := context.Background()
	svc, _, fake := newTestService(t)

	r := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})

	t.Run("cannot end before starting", func(t *testing.T) {
		_, err := svc.EndUsage(ctx, r.ID, false, "")
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	fake.Set(t0.Add(time.Hour))
	started, err := svc.StartUsage(ctx, r.ID, "192.168.1.20")
	require.NoError(t, err)
	assert.Equal(t, model.UsageActive, started.Status)
	require.NotNil(t, started.ActualStartTime)
	assert.Equal(t, "192.168.1.20", started.IPAddress)
	assert.Equal(t, "pc", started.IPType)

	t.Run("double start", func(t *testing.T) {
		_, err := svc.StartUsage(ctx, r.ID, "192.168.1.20")
		assert.ErrorIs(t, err, ErrAlreadyStarted)
	})

	fake.Set(t0.Add(90 * time.Minute))
	ended, err := svc.EndUsage(ctx, r.ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, model.UsageCompleted, ended.Status)
	assert.Empty(t, ended.TerminationReason)
	assert.Equal(t, (30 * time.Minute).Seconds(), ended.Duration())

	t.Run("double end", func(t *testing.T) {
		_, err := svc.EndUsage(ctx, r.ID, false, "")
		assert.ErrorIs(t, err, ErrAlreadyEnded)
	})

	t.Run("missing usage record", func(t *testing.T) {
		_, err := svc.StartUsage(ctx, 424242, "192.168.1.20")
		assert.ErrorIs(t, err, ErrUsageNotFound)
	})
}

func TestEndUsageTerminated(t *testing.T) {
	ctx := context.Background()
	svc, _, fake := newTestService(t)

	r := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	fake.Set(t0.Add(time.Hour))
	_, err := svc.StartUsage(ctx, r.ID, "192.168.1.20")
	require.NoError(t, err)

	ended, err := svc.EndUsage(ctx, r.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, model.UsageTerminated, ended.Status)
	assert.Equal(t, "manually terminated", ended.TerminationReason)
}

func TestTerminateActiveSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, fake := newTestService(t)

	a := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	b := mustBook(t, svc, BookRequest{
		DeviceID: "dev-02", UserID: 2,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})

	fake.Set(t0.Add(time.Hour))
	_, err := svc.StartUsage(ctx, a.ID, "192.168.1.20")
	require.NoError(t, err)
	_, err = svc.StartUsage(ctx, b.ID, "192.168.1.21")
	require.NoError(t, err)

	count, err := svc.TerminateActiveSessions(ctx, "dev-01", 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The other device's session is still open.
	records, err := svc.ListUsage(ctx, store.UsageFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dev-02", records[0].DeviceID)
}

func TestListReservationsRecomputesStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, fake := newTestService(t)

	mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})

	// The persisted status is still "upcoming"; the list view must not
	// leak it once the window has started.
	fake.Set(t0.Add(90 * time.Minute))
	got, err := svc.ListReservations(ctx, store.ReservationFilter{ShowActive: true, ShowUpcoming: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ReservationActive, got[0].Status)
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})

	t.Run("all devices", func(t *testing.T) {
		got, err := svc.Availability(ctx, "", t0.Add(90*time.Minute), t0.Add(3*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		byDevice := map[string]bool{}
		for _, a := range got {
			byDevice[a.Device.DeviceID] = a.Booked
		}
		assert.True(t, byDevice["dev-01"])
		assert.False(t, byDevice["dev-02"])
	})

	t.Run("single device", func(t *testing.T) {
		got, err := svc.Availability(ctx, "dev-01", t0.Add(2*time.Hour), t0.Add(3*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Booked, "back-to-back window must read as available")
	})

	t.Run("unknown device", func(t *testing.T) {
		_, err := svc.Availability(ctx, "dev-99", t0, t0.Add(time.Hour))
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := svc.Availability(ctx, "", t0.Add(time.Hour), t0)
		assert.ErrorIs(t, err, ErrInvalidTimeRange)
	})
}

func TestDeleteUsage(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newTestService(t)

	r := mustBook(t, svc, BookRequest{
		DeviceID: "dev-01", UserID: 1,
		Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
	})
	usage, err := s.GetUsageByReservation(ctx, r.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteUsage(ctx, usage.ID, 99, false), ErrUnauthorized)
	assert.NoError(t, svc.DeleteUsage(ctx, usage.ID, 1, false))
	assert.ErrorIs(t, svc.DeleteUsage(ctx, usage.ID, 1, false), ErrUsageNotFound)
}
