// Package wol builds and transmits Wake-on-LAN magic packets.
//
// A magic packet is six 0xFF bytes followed by the target's 6-byte hardware
// address repeated sixteen times (102 bytes). The payload carries no
// authentication; anyone on the segment can send one.
//
// Packets are sent as UDP broadcast datagrams. The default destination set
// is the limited broadcast address 255.255.255.255 on ports 9 (discard) and
// 7 (echo). Delivery is best-effort: a successful send only means the
// datagram left the host.
//
// Usage:
//
//	tx := wol.NewTransmitter(2 * time.Second)
//	pkt := wol.NewPacket(mac)
//	err := tx.Send(ctx, pkt.Bytes(), wol.DefaultDestinations(netip.Addr{}, nil))
package wol
