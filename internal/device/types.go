package device

import (
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// Device is a machine that can be woken and monitored.
type Device struct {
	// Identity
	ID    string `json:"id"`
	Label string `json:"label"`

	// HardwareAddress is the target of the magic packet.
	HardwareAddress address.HardwareAddress `json:"hardware_address"`

	// Endpoints are probed for reachability. A device with no endpoints is
	// never probed and its status stays unknown.
	Endpoints []address.HostEndpoint `json:"endpoints"`

	// WakeTargets override the default broadcast destinations when non-empty.
	// Example: ["192.168.10.255:9"] for a directed subnet broadcast.
	WakeTargets []wol.Destination `json:"wake_targets"`

	// Seq is the creation order index. It is recomputed in load order on
	// startup and is not changed by reordering.
	Seq uint64 `json:"seq"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Endpoints != nil {
		cpy.Endpoints = make([]address.HostEndpoint, len(d.Endpoints))
		copy(cpy.Endpoints, d.Endpoints)
	}
	if d.WakeTargets != nil {
		cpy.WakeTargets = make([]wol.Destination, len(d.WakeTargets))
		copy(cpy.WakeTargets, d.WakeTargets)
	}
	return &cpy
}

// Snapshot is an immutable, ordered copy of the registry contents.
// Version increases by one for every committed mutation.
type Snapshot struct {
	Version uint64   `json:"version"`
	Devices []Device `json:"devices"`
}

// Keys returns the device IDs in display order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s.Devices))
	for i := range s.Devices {
		keys[i] = s.Devices[i].ID
	}
	return keys
}

// Changes describes a partial update. Nil fields are left unchanged.
type Changes struct {
	Label           *string
	HardwareAddress *address.HardwareAddress
	Endpoints       *[]address.HostEndpoint
	WakeTargets     *[]wol.Destination
}

// IsEmpty reports whether c changes nothing.
func (c Changes) IsEmpty() bool {
	return c.Label == nil && c.HardwareAddress == nil && c.Endpoints == nil && c.WakeTargets == nil
}
