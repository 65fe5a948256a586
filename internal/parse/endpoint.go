package parse

import (
	"strings"

	"device-reservation-backend/internal/model"
)

// EndpointKind identifies which of a device's sub-component endpoints a
// session talks to.
type EndpointKind string

const (
	EndpointPC         EndpointKind = "pc"
	EndpointRutomatrix EndpointKind = "rutomatrix"
	EndpointPulse1     EndpointKind = "pulse1"
	EndpointCT1        EndpointKind = "ct1"
)

// ParseEndpointKind derives the endpoint kind embedded in a device
// identifier. Identifiers follow the lab convention of carrying the
// sub-component name as a substring ("rack3-rutomatrix-01"); anything
// unrecognised falls back to the PC endpoint.
func ParseEndpointKind(deviceID string) EndpointKind {
	id := strings.ToLower(strings.TrimSpace(deviceID))
	switch {
	case strings.Contains(id, "rutomatrix"):
		return EndpointRutomatrix
	case strings.Contains(id, "pulse"):
		return EndpointPulse1
	case strings.Contains(id, "ct"):
		return EndpointCT1
	default:
		return EndpointPC
	}
}

// EndpointAddress returns the device address for the given endpoint kind.
// An empty string means the device has no such endpoint configured.
func EndpointAddress(d *model.Device, kind EndpointKind) string {
	switch kind {
	case EndpointRutomatrix:
		return d.RutomatrixIP
	case EndpointPulse1:
		return d.Pulse1IP
	case EndpointCT1:
		return d.CT1IP
	default:
		return d.PCIP
	}
}
