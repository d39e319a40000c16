package reachability

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ICMP protocol numbers for icmp.ParseMessage.
const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58

	echoReadBuffer = 1500
)

var echoPayload = []byte("lanwake-probe")

// EchoChecker sends one ICMP echo request over an unprivileged datagram
// socket and waits for the matching reply.
type EchoChecker struct {
	id  int
	seq atomic.Uint32
}

// NewEchoChecker creates an EchoChecker.
func NewEchoChecker() *EchoChecker {
	return &EchoChecker{id: os.Getpid() & 0xffff}
}

// Check pings addr. The port is ignored.
func (e *EchoChecker) Check(ctx context.Context, addr netip.Addr, _ int) error {
	network, listenAddr, proto := "udp4", "0.0.0.0", protocolICMP
	var reqType, replyType icmp.Type = ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	if !addr.Is4() {
		network, listenAddr, proto = "udp6", "::", protocolIPv6ICMP
		reqType, replyType = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
	}

	conn, err := icmp.ListenPacket(network, listenAddr)
	if err != nil {
		return fmt.Errorf("opening icmp socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now()) //nolint:errcheck // Unblocks the read below
	})
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("setting deadline: %w", err)
		}
	}

	seq := int(e.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: reqType,
		Body: &icmp.Echo{ID: e.id, Seq: seq, Data: echoPayload},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("encoding echo: %w", err)
	}

	dst := &net.UDPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return fmt.Errorf("sending echo: %w", err)
	}

	buf := make([]byte, echoReadBuffer)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading reply: %w", err)
		}

		reply, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil || reply.Type != replyType {
			continue
		}
		// The kernel rewrites the ID on unprivileged sockets, so match on
		// sequence and payload only.
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq || !bytes.Equal(echo.Data, echoPayload) {
			continue
		}
		return nil
	}
}
