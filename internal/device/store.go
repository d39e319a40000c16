package device

import "context"

// Store defines the persistence boundary of the registry.
// Implementations must preserve order and round-trip the ID, label,
// hardware address, endpoints and wake targets without loss.
type Store interface {
	// Load returns all stored devices in display order.
	// An empty or missing store returns an empty slice and no error.
	Load(ctx context.Context) ([]Device, error)

	// Save replaces the stored devices with devices, in order.
	Save(ctx context.Context, devices []Device) error
}
