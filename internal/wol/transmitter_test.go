package wol

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// listenLoopback opens a UDP listener on 127.0.0.1 and returns its destination.
func listenLoopback(t *testing.T) (*net.UDPConn, Destination) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return conn, Destination{Addr: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}
}

func readPacket(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 512)
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf[:n]
}

func TestTransmitter_SendLoopback(t *testing.T) {
	conn, dest := listenLoopback(t)
	mac := address.MustParseHardwareAddress("26:ce:55:a5:c2:33")
	payload := NewPacket(mac).Bytes()

	tx := NewTransmitter(time.Second)
	if err := tx.Send(context.Background(), payload, []Destination{dest}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := readPacket(t, conn)
	if !bytes.Equal(got, payload) {
		t.Errorf("received %x, want %x", got, payload)
	}
	if parsed, err := ParsePacket(got); err != nil || parsed != mac {
		t.Errorf("ParsePacket(received) = %v, %v", parsed, err)
	}
}

func TestTransmitter_ConcurrentSends(t *testing.T) {
	conn, dest := listenLoopback(t)
	tx := NewTransmitter(time.Second)

	macs := []address.HardwareAddress{
		address.MustParseHardwareAddress("00:11:22:33:44:55"),
		address.MustParseHardwareAddress("66:77:88:99:aa:bb"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(macs))
	for i, mac := range macs {
		wg.Add(1)
		go func(i int, mac address.HardwareAddress) {
			defer wg.Done()
			errs[i] = tx.Send(context.Background(), NewPacket(mac).Bytes(), []Destination{dest})
		}(i, mac)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Send #%d error = %v", i, err)
		}
	}

	seen := make(map[address.HardwareAddress]bool)
	for range macs {
		mac, err := ParsePacket(readPacket(t, conn))
		if err != nil {
			t.Fatalf("ParsePacket: %v", err)
		}
		seen[mac] = true
	}
	for _, mac := range macs {
		if !seen[mac] {
			t.Errorf("packet for %v not received", mac)
		}
	}
}

func TestTransmitter_PartialFailure(t *testing.T) {
	conn, dest := listenLoopback(t)
	logger := &recordingLogger{}

	tx := NewTransmitter(time.Second)
	tx.SetLogger(logger)
	tx.listen = func(network string) (*net.UDPConn, error) {
		if network == "udp6" {
			return nil, errors.New("no ipv6 here")
		}
		return net.ListenUDP(network, nil)
	}

	v6 := Destination{Addr: netip.MustParseAddrPort("[::1]:9")}
	payload := NewPacket(address.HardwareAddress{1, 2, 3, 4, 5, 6}).Bytes()

	if err := tx.Send(context.Background(), payload, []Destination{dest, v6}); err != nil {
		t.Fatalf("Send() error = %v, want nil on partial success", err)
	}
	readPacket(t, conn)

	if logger.warnCount() != 1 {
		t.Errorf("warnings = %d, want 1", logger.warnCount())
	}
}

func TestTransmitter_AllFail(t *testing.T) {
	tx := NewTransmitter(time.Second)
	tx.listen = func(string) (*net.UDPConn, error) {
		return nil, errors.New("permission denied")
	}

	err := tx.Send(context.Background(), make([]byte, PacketLen), DefaultDestinations(netip.Addr{}, nil))
	if !errors.Is(err, ErrTransmit) {
		t.Errorf("Send() error = %v, want ErrTransmit", err)
	}
}

func TestTransmitter_FailuresKeepDestinationOrder(t *testing.T) {
	tx := NewTransmitter(time.Second)
	tx.listen = func(string) (*net.UDPConn, error) {
		return nil, errors.New("permission denied")
	}

	dests := []Destination{
		{Addr: netip.MustParseAddrPort("[ff02::1]:9")},
		{Addr: netip.MustParseAddrPort("192.168.1.255:9")},
		{Addr: netip.MustParseAddrPort("10.0.0.255:7")},
		{Addr: netip.MustParseAddrPort("[::1]:7")},
	}

	for run := 0; run < 5; run++ {
		err := tx.Send(context.Background(), make([]byte, PacketLen), dests)
		if !errors.Is(err, ErrTransmit) {
			t.Fatalf("Send() error = %v, want ErrTransmit", err)
		}

		msg := err.Error()
		last := -1
		for _, d := range dests {
			at := strings.Index(msg, d.String()+":")
			if at < 0 {
				t.Fatalf("error %q does not mention %s", msg, d)
			}
			if at < last {
				t.Fatalf("error %q lists %s out of order", msg, d)
			}
			last = at
		}
	}
}

func TestTransmitter_NoDestinations(t *testing.T) {
	tx := NewTransmitter(0)
	if err := tx.Send(context.Background(), []byte{1}, nil); !errors.Is(err, ErrTransmit) {
		t.Errorf("Send() error = %v, want ErrTransmit", err)
	}
}

func TestTransmitter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := NewTransmitter(0)
	err := tx.Send(ctx, []byte{1}, DefaultDestinations(netip.Addr{}, nil))
	if !errors.Is(err, ErrTransmit) || !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want ErrTransmit wrapping context.Canceled", err)
	}
}

func TestDefaultDestinations(t *testing.T) {
	got := DefaultDestinations(netip.Addr{}, nil)
	want := []string{"255.255.255.255:9", "255.255.255.255:7"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("dest[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	custom := DefaultDestinations(netip.MustParseAddr("192.168.1.255"), []uint16{40000})
	if len(custom) != 1 || custom[0].String() != "192.168.1.255:40000" {
		t.Errorf("custom = %v", custom)
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "192.168.1.255:9", want: "192.168.1.255:9"},
		{input: "10.0.0.255", want: "10.0.0.255:9"},
		{input: "[ff02::1]:7", want: "[ff02::1]:7"},
		{input: "10.0.0.255:0", wantErr: true},
		{input: "broadcast", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDestination(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDestination(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDestination(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDestination(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
