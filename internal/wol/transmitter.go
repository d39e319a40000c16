package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"
)

// Default destination values.
const (
	// DefaultPort is the discard port conventionally used for magic packets.
	DefaultPort = 9

	// EchoPort is the alternate port some NICs listen on.
	EchoPort = 7

	// DefaultSendTimeout bounds each datagram write.
	DefaultSendTimeout = 2 * time.Second
)

// LimitedBroadcast is the IPv4 limited broadcast address.
var LimitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Destination is a UDP address a wake packet is sent to.
type Destination struct {
	Addr netip.AddrPort
}

// ParseDestination parses "addr:port" or a bare IPv4 address (port 9).
func ParseDestination(text string) (Destination, error) {
	s := strings.TrimSpace(text)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		if ap.Port() == 0 {
			return Destination{}, fmt.Errorf("wol: destination %q: port must be non-zero", text)
		}
		return Destination{Addr: ap}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Destination{}, fmt.Errorf("wol: destination %q: %w", text, err)
	}
	return Destination{Addr: netip.AddrPortFrom(addr, DefaultPort)}, nil
}

// String returns "addr:port".
func (d Destination) String() string {
	return d.Addr.String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Destination) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Destination) UnmarshalText(text []byte) error {
	parsed, err := ParseDestination(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DefaultDestinations returns broadcast on each of ports. The zero Addr
// means 255.255.255.255; empty ports means 9 and 7.
func DefaultDestinations(broadcast netip.Addr, ports []uint16) []Destination {
	if !broadcast.IsValid() {
		broadcast = LimitedBroadcast
	}
	if len(ports) == 0 {
		ports = []uint16{DefaultPort, EchoPort}
	}

	dests := make([]Destination, 0, len(ports))
	for _, p := range ports {
		dests = append(dests, Destination{Addr: netip.AddrPortFrom(broadcast, p)})
	}
	return dests
}

// Logger defines the logging interface used by the Transmitter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transmitter sends wake payloads over UDP.
//
// Every Send opens its own socket, so concurrent calls never share state.
type Transmitter struct {
	sendTimeout time.Duration
	logger      Logger

	// listen opens the sending socket; replaced in tests.
	listen func(network string) (*net.UDPConn, error)
}

// NewTransmitter creates a Transmitter. A non-positive sendTimeout uses
// DefaultSendTimeout.
func NewTransmitter(sendTimeout time.Duration) *Transmitter {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Transmitter{
		sendTimeout: sendTimeout,
		logger:      noopLogger{},
		listen: func(network string) (*net.UDPConn, error) {
			return net.ListenUDP(network, nil)
		},
	}
}

// SetLogger sets the logger for the transmitter.
func (t *Transmitter) SetLogger(logger Logger) {
	t.logger = logger
}

// Send writes payload once to every destination.
//
// Go enables SO_BROADCAST on UDP sockets, so broadcast addresses work
// without extra setup. Send fails with ErrTransmit when the socket cannot be
// opened or every destination fails. When only some destinations fail, a
// warning is logged and nil is returned.
func (t *Transmitter) Send(ctx context.Context, payload []byte, destinations []Destination) error {
	if len(destinations) == 0 {
		return fmt.Errorf("%w: no destinations", ErrTransmit)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransmit, err)
	}

	dests, v4, v6 := splitFamilies(destinations)

	// errs[i] is the failure for destinations[i], nil when it was sent.
	errs := make([]error, len(dests))
	for _, group := range []struct {
		network string
		indexes []int
	}{{"udp4", v4}, {"udp6", v6}} {
		if len(group.indexes) > 0 {
			t.sendGroup(ctx, group.network, payload, dests, group.indexes, errs)
		}
	}

	var failures []error
	var failed []string
	sent := 0
	for i, err := range errs {
		if err == nil {
			sent++
			continue
		}
		failed = append(failed, dests[i].String())
		failures = append(failures, fmt.Errorf("%s: %w", dests[i], err))
	}

	if sent == 0 {
		return fmt.Errorf("%w: %w", ErrTransmit, errors.Join(failures...))
	}
	if len(failed) > 0 {
		t.logger.Warn("wake packet partially sent",
			"sent", sent,
			"failed", strings.Join(failed, ","),
		)
	}

	t.logger.Debug("wake packet sent", "destinations", sent, "bytes", len(payload))
	return nil
}

// sendGroup sends to dests[i] for each i in indexes over one socket and
// records each outcome in errs[i].
func (t *Transmitter) sendGroup(ctx context.Context, network string, payload []byte, dests []Destination, indexes []int, errs []error) {
	fail := func(err error) {
		for _, i := range indexes {
			errs[i] = err
		}
	}

	conn, err := t.listen(network)
	if err != nil {
		fail(fmt.Errorf("opening socket: %w", err))
		return
	}
	defer conn.Close()

	deadline := time.Now().Add(t.sendTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		fail(fmt.Errorf("setting deadline: %w", err))
		return
	}

	for _, i := range indexes {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		if _, err := conn.WriteToUDPAddrPort(payload, dests[i].Addr); err != nil {
			errs[i] = err
		}
	}
}

// splitFamilies unmaps IPv4-mapped addresses and returns the indexes of the
// IPv4 and IPv6 destinations, each in their original order.
func splitFamilies(destinations []Destination) (dests []Destination, v4, v6 []int) {
	dests = make([]Destination, len(destinations))
	for i, d := range destinations {
		if addr := d.Addr.Addr().Unmap(); addr.Is4() {
			dests[i] = Destination{Addr: netip.AddrPortFrom(addr, d.Addr.Port())}
			v4 = append(v4, i)
			continue
		}
		dests[i] = d
		v6 = append(v6, i)
	}
	return dests, v4, v6
}
