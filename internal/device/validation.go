package device

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// Validation constants.
const (
	maxLabelLength  = 100
	maxEndpoints    = 16
	maxWakeTargets  = 16
	maxEndpointPort = 65535
)

// ValidateDevice checks d and normalises it in place: the label is trimmed
// and duplicate endpoints are dropped. Returns the first failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}

	label, err := NormaliseLabel(d.Label)
	if err != nil {
		return err
	}
	d.Label = label

	endpoints, err := normaliseEndpoints(d.Endpoints)
	if err != nil {
		return err
	}
	d.Endpoints = endpoints

	return validateWakeTargets(d.WakeTargets)
}

// NormaliseLabel trims label and checks it is non-empty and at most 100
// characters.
func NormaliseLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", fmt.Errorf("%w: label cannot be empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(label) > maxLabelLength {
		return "", fmt.Errorf("%w: label exceeds %d characters", ErrInvalidName, maxLabelLength)
	}
	return label, nil
}

func normaliseEndpoints(endpoints []address.HostEndpoint) ([]address.HostEndpoint, error) {
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]address.HostEndpoint, 0, len(endpoints))

	for _, ep := range endpoints {
		if strings.TrimSpace(ep.Host) == "" {
			return nil, fmt.Errorf("%w: endpoint host cannot be empty", ErrInvalidDevice)
		}
		if ep.Port < 0 || ep.Port > maxEndpointPort {
			return nil, fmt.Errorf("%w: endpoint %s has invalid port", ErrInvalidDevice, ep)
		}
		// Stores reload endpoints from their text form, so only accept
		// endpoints that survive it unchanged.
		key := ep.String()
		parsed, err := address.ParseEndpoint(key, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDevice, err)
		}
		if parsed != ep {
			return nil, fmt.Errorf("%w: %w: endpoint %q is not in canonical form", ErrInvalidDevice, address.ErrInvalidFormat, ep.Host)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ep)
	}

	if len(out) > maxEndpoints {
		return nil, fmt.Errorf("%w: at most %d endpoints allowed", ErrInvalidDevice, maxEndpoints)
	}
	return out, nil
}

func validateWakeTargets(targets []wol.Destination) error {
	if len(targets) > maxWakeTargets {
		return fmt.Errorf("%w: at most %d wake targets allowed", ErrInvalidDevice, maxWakeTargets)
	}
	for _, t := range targets {
		if !t.Addr.IsValid() || t.Addr.Port() == 0 {
			return fmt.Errorf("%w: wake target %q is not a valid address:port", ErrInvalidDevice, t)
		}
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
