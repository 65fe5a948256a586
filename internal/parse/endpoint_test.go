package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"device-reservation-backend/internal/model"
)

func TestParseEndpointKind(t *testing.T) {
	testCases := []struct {
		deviceID string
		want     EndpointKind
	}{
		{"rack3-rutomatrix-01", EndpointRutomatrix},
		{"RACK1-RUTOMATRIX-02", EndpointRutomatrix},
		{"lab-pulse1-07", EndpointPulse1},
		{"bench-ct1-03", EndpointCT1},
		{"rack2-pc-01", EndpointPC},
		{"  dev-99  ", EndpointPC},
		{"", EndpointPC},
	}

	for _, tc := range testCases {
		t.Run(tc.deviceID, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseEndpointKind(tc.deviceID))
		})
	}
}

func TestEndpointAddress(t *testing.T) {
	device := &model.Device{
		DeviceID:     "rack3-rutomatrix-01",
		PCIP:         "10.0.0.1",
		RutomatrixIP: "10.0.0.2",
		Pulse1IP:     "10.0.0.3",
		CT1IP:        "10.0.0.4",
	}

	assert.Equal(t, "10.0.0.1", EndpointAddress(device, EndpointPC))
	assert.Equal(t, "10.0.0.2", EndpointAddress(device, EndpointRutomatrix))
	assert.Equal(t, "10.0.0.3", EndpointAddress(device, EndpointPulse1))
	assert.Equal(t, "10.0.0.4", EndpointAddress(device, EndpointCT1))

	// Unknown kinds fall back to the PC endpoint.
	assert.Equal(t, "10.0.0.1", EndpointAddress(device, EndpointKind("bogus")))
}
