package devmeta

import "github.com/mrzor/pollscope/internal/usbtrace"

// DeviceMetadata holds identity information for one device handle.
type DeviceMetadata struct {
	Handle    uint64
	VendorID  uint16
	ProductID uint16
}

// Identity returns the "VVVV:PPPP" string, or "" when the vendor is unknown.
func (m *DeviceMetadata) Identity() string {
	if m == nil {
		return ""
	}
	return usbtrace.Identity(m.VendorID, m.ProductID)
}
