package address

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HardwareAddressLen is the number of octets in a hardware address.
const HardwareAddressLen = 6

// HardwareAddress is a 6-byte link-layer address.
// The zero value is 00:00:00:00:00:00. Equality is byte-wise (==).
type HardwareAddress [HardwareAddressLen]byte

// ParseHardwareAddress parses text of the form "aa:bb:cc:dd:ee:ff" or
// "aa-bb-cc-dd-ee-ff". Hex digits are case-insensitive and surrounding
// whitespace is ignored. Exactly six two-digit groups joined by a single kind
// of separator are accepted; anything else fails with ErrInvalidFormat.
func ParseHardwareAddress(text string) (HardwareAddress, error) {
	var addr HardwareAddress

	s := strings.TrimSpace(text)
	// 6 pairs + 5 separators
	if len(s) != HardwareAddressLen*3-1 {
		return addr, fmt.Errorf("%w: hardware address %q must be 6 hex pairs", ErrInvalidFormat, text)
	}

	sep := s[2]
	if sep != ':' && sep != '-' {
		return addr, fmt.Errorf("%w: hardware address %q uses unsupported separator", ErrInvalidFormat, text)
	}

	for i := 0; i < HardwareAddressLen; i++ {
		off := i * 3
		if i > 0 && s[off-1] != sep {
			return addr, fmt.Errorf("%w: hardware address %q mixes separators", ErrInvalidFormat, text)
		}
		if _, err := hex.Decode(addr[i:i+1], []byte(s[off:off+2])); err != nil {
			return HardwareAddress{}, fmt.Errorf("%w: hardware address %q has non-hex octet %q", ErrInvalidFormat, text, s[off:off+2])
		}
	}

	return addr, nil
}

// MustParseHardwareAddress is like ParseHardwareAddress but panics on error.
// Intended for tests and constants.
func MustParseHardwareAddress(text string) HardwareAddress {
	addr, err := ParseHardwareAddress(text)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the canonical lower-case colon-separated form.
func (a HardwareAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Bytes returns a copy of the address octets.
func (a HardwareAddress) Bytes() []byte {
	b := make([]byte, HardwareAddressLen)
	copy(b, a[:])
	return b
}

// IsZero reports whether the address is all zeros.
func (a HardwareAddress) IsZero() bool {
	return a == HardwareAddress{}
}

// MarshalText implements encoding.TextMarshaler.
func (a HardwareAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *HardwareAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseHardwareAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
