package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAvailability handles GET /api/devices/availability. It reports each
// device's booked/available status for a candidate window, or a single
// device's when device_id is given.
func (h *Handler) GetAvailability(c *gin.Context) {
	startParam := c.Query("start_time")
	endParam := c.Query("end_time")
	if startParam == "" || endParam == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Both start_time and end_time are required",
		})
		return
	}

	start, err := h.normalizer.Parse(startParam)
	if err != nil {
		respondError(c, err)
		return
	}
	end, err := h.normalizer.Parse(endParam)
	if err != nil {
		respondError(c, err)
		return
	}

	availability, err := h.bookings.Availability(c.Request.Context(), c.Query("device_id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	type deviceStatus struct {
		deviceInfo
		Status string `json:"status"`
	}
	devices := make([]deviceStatus, 0, len(availability))
	for _, a := range availability {
		status := "available"
		if a.Booked {
			status = "booked"
		}
		devices = append(devices, deviceStatus{
			deviceInfo: deviceInfo{
				ID:           a.Device.DeviceID,
				PCIP:         a.Device.PCIP,
				RutomatrixIP: a.Device.RutomatrixIP,
				Pulse1IP:     a.Device.Pulse1IP,
				CT1IP:        a.Device.CT1IP,
			},
			Status: status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"devices": devices,
		"meta": gin.H{
			"start_time": h.normalizer.Display(start, nil),
			"end_time":   h.normalizer.Display(end, nil),
		},
	})
}

// ListDevices handles GET /api/devices.
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "devices": devices})
}
