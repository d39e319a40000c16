package wol

import (
	"bytes"
	"fmt"

	"github.com/nerrad567/lanwake/internal/address"
)

const (
	syncLen     = 6
	repetitions = 16

	// PacketLen is the size of a magic packet in bytes.
	PacketLen = syncLen + repetitions*address.HardwareAddressLen
)

var syncStream = bytes.Repeat([]byte{0xFF}, syncLen)

// Packet is a Wake-on-LAN magic packet payload.
type Packet [PacketLen]byte

// NewPacket builds the magic packet for addr.
func NewPacket(addr address.HardwareAddress) Packet {
	var p Packet
	copy(p[:syncLen], syncStream)
	for i := 0; i < repetitions; i++ {
		off := syncLen + i*address.HardwareAddressLen
		copy(p[off:off+address.HardwareAddressLen], addr[:])
	}
	return p
}

// Bytes returns the payload as a slice.
func (p Packet) Bytes() []byte {
	b := make([]byte, PacketLen)
	copy(b, p[:])
	return b
}

// ParsePacket extracts the hardware address from a magic packet payload.
// Payloads with the wrong length, a bad sync stream or inconsistent
// repetitions fail with ErrMalformedPacket.
func ParsePacket(payload []byte) (address.HardwareAddress, error) {
	var addr address.HardwareAddress

	if len(payload) != PacketLen {
		return addr, fmt.Errorf("%w: length %d, want %d", ErrMalformedPacket, len(payload), PacketLen)
	}
	if !bytes.Equal(payload[:syncLen], syncStream) {
		return addr, fmt.Errorf("%w: missing sync stream", ErrMalformedPacket)
	}

	copy(addr[:], payload[syncLen:syncLen+address.HardwareAddressLen])
	for i := 1; i < repetitions; i++ {
		off := syncLen + i*address.HardwareAddressLen
		if !bytes.Equal(payload[off:off+address.HardwareAddressLen], addr[:]) {
			return address.HardwareAddress{}, fmt.Errorf("%w: repetition %d does not match", ErrMalformedPacket, i)
		}
	}

	return addr, nil
}
