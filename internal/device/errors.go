package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device label is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidPosition is returned when a reorder index is out of range.
	ErrInvalidPosition = errors.New("device: invalid position")

	// ErrPersist is returned when the registry could not be saved.
	// The in-memory change that triggered the save is still committed.
	ErrPersist = errors.New("device: persist failed")
)
