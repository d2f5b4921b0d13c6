package store

import (
	"time"

	"zigbee-descriptors/internal/descriptor"
)

// Session is the resolved property set of one bound device. It is written
// once at bind time and never modified; rebinding replaces it.
type Session struct {
	ID          string                        `json:"id"`
	IEEEAddress string                        `json:"ieee_address"`
	Model       string                        `json:"model"`
	Vendor      string                        `json:"vendor,omitempty"`
	Properties  []descriptor.ResolvedProperty `json:"properties"`
	BoundAt     time.Time                     `json:"bound_at"`
}
