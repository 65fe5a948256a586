package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"device-reservation-backend/internal/model"
	"device-reservation-backend/internal/parse"
	"device-reservation-backend/internal/store"
)

// usageResponse is the wire form of a usage record.
type usageResponse struct {
	ID                int64             `json:"id"`
	DeviceID          string            `json:"device_id"`
	UserID            int64             `json:"user_id"`
	ReservationID     *int64            `json:"reservation_id,omitempty"`
	ActualStartTime   *string           `json:"actual_start_time"`
	ActualEndTime     *string           `json:"actual_end_time"`
	DurationSeconds   float64           `json:"duration_seconds"`
	Status            model.UsageStatus `json:"status"`
	TerminationReason string            `json:"termination_reason,omitempty"`
	IPType            string            `json:"ip_type,omitempty"`
	DeviceIP          string            `json:"device_ip,omitempty"`
}

func (h *Handler) usageResponse(u *model.UsageRecord) usageResponse {
	format := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := h.normalizer.Display(*t, nil).Format(time.RFC3339)
		return &s
	}
	resp := usageResponse{
		ID:                u.ID,
		DeviceID:          u.DeviceID,
		UserID:            u.UserID,
		ReservationID:     u.ReservationID,
		ActualStartTime:   format(u.ActualStartTime),
		ActualEndTime:     format(u.ActualEndTime),
		DurationSeconds:   u.Duration(),
		Status:            u.Status,
		TerminationReason: u.TerminationReason,
		IPType:            u.IPType,
	}
	if u.Device.DeviceID != "" {
		resp.DeviceIP = parse.EndpointAddress(&u.Device, parse.EndpointKind(u.IPType))
	}
	return resp
}

// StartUsage handles POST /api/reservations/:id/start.
func (h *Handler) StartUsage(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	reservationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid reservation ID"})
		return
	}

	usage, err := h.bookings.StartUsage(c.Request.Context(), reservationID, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.usageResponse(usage)})
}

type endUsageRequest struct {
	Terminated bool   `json:"terminated"`
	Reason     string `json:"reason"`
}

// EndUsage handles POST /api/reservations/:id/end.
func (h *Handler) EndUsage(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	reservationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid reservation ID"})
		return
	}

	var req endUsageRequest
	// The body is optional; an empty body means a normal completion.
	_ = c.ShouldBindJSON(&req)

	usage, err := h.bookings.EndUsage(c.Request.Context(), reservationID, req.Terminated, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.usageResponse(usage)})
}

// ListUsage handles GET /api/usage, the usage-history view.
func (h *Handler) ListUsage(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	filter := store.UsageFilter{
		DeviceID:   c.Query("device_id"),
		ActiveOnly: c.Query("active_only") == "true",
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid user_id"})
			return
		}
		filter.UserID = id
	}

	records, err := h.bookings.ListUsage(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := make([]usageResponse, 0, len(records))
	for i := range records {
		payload = append(payload, h.usageResponse(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"records": payload,
			"meta":    gin.H{"count": len(payload)},
		},
	})
}

// DeleteUsage handles DELETE /api/usage/:id.
func (h *Handler) DeleteUsage(c *gin.Context) {
	userID, isAdmin, ok := identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}

	usageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid usage record ID"})
		return
	}

	if err := h.bookings.DeleteUsage(c.Request.Context(), usageID, userID, isAdmin); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type terminateSessionsRequest struct {
	DeviceID string `json:"device_id"`
	UserID   int64  `json:"user_id"`
	Reason   string `json:"reason"`
}

// TerminateSessions handles POST /api/usage/terminate, the admin bulk
// termination path.
func (h *Handler) TerminateSessions(c *gin.Context) {
	_, isAdmin, ok := identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing caller identity"})
		return
	}
	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "admin role required"})
		return
	}

	var req terminateSessionsRequest
	_ = c.ShouldBindJSON(&req)

	count, err := h.bookings.TerminateActiveSessions(c.Request.Context(), req.DeviceID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "terminated": count})
}
