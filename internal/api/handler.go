package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"device-reservation-backend/internal/booking"
	"device-reservation-backend/internal/store"
	"device-reservation-backend/internal/timeutil"
)

// Handler holds shared dependencies for API handlers. Authentication is
// an external collaborator: handlers trust the identity headers set by
// the gateway in front of this service.
type Handler struct {
	store      store.Store
	bookings   *booking.Service
	normalizer *timeutil.Normalizer
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *booking.Service, n *timeutil.Normalizer, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:      s,
		bookings:   svc,
		normalizer: n,
		webpush:    webpushOptions,
	}
}

// identity extracts the caller identity forwarded by the auth gateway.
func identity(c *gin.Context) (userID int64, isAdmin bool, ok bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return 0, false, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, false
	}
	return id, c.GetHeader("X-User-Role") == "admin", true
}

// respondError maps service errors onto HTTP statuses. Anything not a
// known kind is a persistence failure and surfaces as a 500 without
// leaking internals.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, booking.ErrInvalidTimeRange), errors.Is(err, timeutil.ErrInvalidTimeFormat):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, booking.ErrUnauthorized):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, booking.ErrDeviceNotFound),
		errors.Is(err, booking.ErrReservationNotFound),
		errors.Is(err, booking.ErrUsageNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, booking.ErrConflict),
		errors.Is(err, booking.ErrAlreadyStarted),
		errors.Is(err, booking.ErrAlreadyEnded),
		errors.Is(err, booking.ErrNotStarted),
		errors.Is(err, booking.ErrNotCancellable):
		status, message = http.StatusConflict, err.Error()
	}

	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
