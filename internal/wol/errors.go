package wol

import "errors"

// Domain errors for the wol package.
var (
	// ErrTransmit is returned when the wake packet could not be sent to any
	// destination, or the socket could not be opened.
	ErrTransmit = errors.New("wol: transmit failed")

	// ErrMalformedPacket is returned when a payload is not a valid magic packet.
	ErrMalformedPacket = errors.New("wol: malformed packet")
)
