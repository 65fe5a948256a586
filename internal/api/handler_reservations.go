package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"device-reservation-backend/internal/booking"
	"device-reservation-backend/internal/model"
	"device-reservation-backend/internal/store"
)

type createReservationRequest struct {
	DeviceID  string `json:"device_id" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Purpose   string `json:"purpose"`
}

// reservationResponse is the wire form of a reservation, with times
// rendered in the canonical zone.
type reservationResponse struct {
	ID      int64                   `json:"id"`
	Device  deviceInfo              `json:"device"`
	UserID  int64                   `json:"user_id"`
	Time    timeInfo                `json:"time"`
	Status  model.ReservationStatus `json:"status"`
	Purpose string                  `json:"purpose"`
}

type deviceInfo struct {
	ID           string `json:"id"`
	PCIP         string `json:"pc_ip"`
	RutomatrixIP string `json:"rutomatrix_ip"`
	Pulse1IP     string `json:"pulse1_ip"`
	CT1IP        string `json:"ct1_ip"`
}

type timeInfo struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	Timezone        string `json:"timezone"`
}

func (h *Handler) reservationResponse(r *model.Reservation) reservationResponse {
	loc := h.normalizer.Location()
	start := h.normalizer.Display(r.StartTime, loc)
	end := h.normalizer.Display(r.EndTime, loc)
	return reservationResponse{
		ID: r.ID,
		Device: deviceInfo{
			ID:           r.DeviceID,
			PCIP:         r.Device.PCIP,
			RutomatrixIP: r.Device.RutomatrixIP,
			Pulse1IP:     r.Device.Pulse1IP,
			CT1IP:        r.Device.CT1IP,
		},
		UserID: r.UserID,
		Time: timeInfo{
			Start:           start.Format(time.RFC3339),
			End:             end.Format(time.RFC3339),
			DurationMinutes: int(end.Sub(start).Minutes()),
			Timezone:        loc.String(),
		},
		Status:  r.Status,
		Purpose: r.Purpose,
	}
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing required fields"})
		return
	}

	start, err := h.normalizer.Parse(req.StartTime)
	if err != nil {
		respondError(c, err)
		return
	}
	end, err := h.normalizer.Parse(req.EndTime)
	if err != nil {
		respondError(c, err)
		return
	}

	reservation, err := h.bookings.Book(c.Request.Context(), booking.BookRequest{
		DeviceID: req.DeviceID,
		UserID:   userID,
		Start:    start,
		End:      end,
		Purpose:  req.Purpose,
		CallerIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Reload with the device association for the response payload.
	full, err := h.store.GetReservation(c.Request.Context(), reservation.ID)
	if err != nil {
		full = reservation
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Reservation created",
		"data":    h.reservationResponse(full),
	})
}

// ListReservations handles GET /api/reservations with the dashboard's
// filter toggles.
func (h *Handler) ListReservations(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	boolQuery := func(key string, fallback bool) bool {
		v := c.Query(key)
		if v == "" {
			return fallback
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return parsed
	}

	filter := store.ReservationFilter{
		DeviceID:     c.Query("device_id"),
		ShowExpired:  boolQuery("show_expired", false),
		ShowUpcoming: boolQuery("show_upcoming", true),
		ShowActive:   boolQuery("show_active", true),
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid user_id"})
			return
		}
		filter.UserID = id
	}

	reservations, err := h.bookings.ListReservations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := make([]reservationResponse, 0, len(reservations))
	for i := range reservations {
		payload = append(payload, h.reservationResponse(&reservations[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"booked_devices": payload,
			"meta": gin.H{
				"count": len(payload),
			},
		},
	})
}

// CancelReservation handles POST /api/reservations/:id/cancel.
func (h *Handler) CancelReservation(c *gin.Context) {
	userID, isAdmin, ok := identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	reservationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid reservation ID"})
		return
	}

	if err := h.bookings.Cancel(c.Request.Context(), reservationID, userID, isAdmin); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Reservation cancelled successfully",
		"reservation_id": reservationID,
	})
}
