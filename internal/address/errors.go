package address

import "errors"

// ErrInvalidFormat is returned when hardware address or endpoint text cannot
// be parsed. Callers surface it to the user for correction.
var ErrInvalidFormat = errors.New("address: invalid format")
