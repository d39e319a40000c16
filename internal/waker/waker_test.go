package waker

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/wol"
)

type recordingSender struct {
	mu    sync.Mutex
	sends []sentPacket
	err   error
}

type sentPacket struct {
	payload []byte
	dests   []wol.Destination
}

func (r *recordingSender) Send(_ context.Context, payload []byte, dests []wol.Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentPacket{payload: payload, dests: dests})
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

type recordingChecker struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingChecker) CheckSoon(key string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (o *recordingObserver) WakeAttempted(_ context.Context, a Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

var testMAC = address.MustParseHardwareAddress("26:ce:55:a5:c2:33")

func TestWake_SendsPacketToDefaultDestinations(t *testing.T) {
	reg := device.NewRegistry()
	key, err := reg.Add(context.Background(), "pc", testMAC, nil, nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	sender := &recordingSender{}
	checker := &recordingChecker{}
	observer := &recordingObserver{}
	svc := NewService(Config{}, reg, sender, checker)
	svc.AddObserver(observer)

	if err := svc.Wake(context.Background(), key); err != nil {
		t.Fatalf("Wake() error = %v", err)
	}

	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
	sent := sender.sends[0]
	mac, err := wol.ParsePacket(sent.payload)
	if err != nil || mac != testMAC {
		t.Errorf("payload decodes to %v, %v; want %v", mac, err, testMAC)
	}
	if len(sent.dests) != 2 || sent.dests[0].String() != "255.255.255.255:9" || sent.dests[1].String() != "255.255.255.255:7" {
		t.Errorf("destinations = %v", sent.dests)
	}
	if len(checker.keys) != 1 || checker.keys[0] != key {
		t.Errorf("CheckSoon calls = %v, want [%s]", checker.keys, key)
	}
	if len(observer.attempts) != 1 || observer.attempts[0].Err != nil {
		t.Errorf("observer attempts = %+v", observer.attempts)
	}
}

func TestWake_UsesDeviceWakeTargets(t *testing.T) {
	reg := device.NewRegistry()
	targets := []wol.Destination{{Addr: netip.MustParseAddrPort("192.168.7.255:9")}}
	key, err := reg.Add(context.Background(), "pc", testMAC, nil, targets)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	sender := &recordingSender{}
	svc := NewService(Config{Broadcast: netip.MustParseAddr("10.0.0.255"), Ports: []uint16{9}}, reg, sender, nil)
	if err := svc.Wake(context.Background(), key); err != nil {
		t.Fatalf("Wake() error = %v", err)
	}
	if got := sender.sends[0].dests; len(got) != 1 || got[0].String() != "192.168.7.255:9" {
		t.Errorf("destinations = %v, want device wake target", got)
	}
}

func TestWake_UnknownKeySendsNothing(t *testing.T) {
	reg := device.NewRegistry()
	key, err := reg.Add(context.Background(), "gone", testMAC, nil, nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := reg.Remove(context.Background(), key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	sender := &recordingSender{}
	checker := &recordingChecker{}
	svc := NewService(Config{}, reg, sender, checker)

	if err := svc.Wake(context.Background(), key); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Wake() error = %v, want ErrDeviceNotFound", err)
	}
	if sender.count() != 0 {
		t.Errorf("sends = %d, want 0", sender.count())
	}
	if len(checker.keys) != 0 {
		t.Errorf("CheckSoon called for unknown key")
	}
}

func TestWake_TransmitFailure(t *testing.T) {
	reg := device.NewRegistry()
	key, _ := reg.Add(context.Background(), "pc", testMAC, nil, nil)

	sender := &recordingSender{err: wol.ErrTransmit}
	checker := &recordingChecker{}
	observer := &recordingObserver{}
	svc := NewService(Config{}, reg, sender, checker)
	svc.AddObserver(observer)

	if err := svc.Wake(context.Background(), key); !errors.Is(err, wol.ErrTransmit) {
		t.Errorf("Wake() error = %v, want ErrTransmit", err)
	}
	if len(checker.keys) != 0 {
		t.Error("CheckSoon called after failed send")
	}
	if len(observer.attempts) != 1 || !errors.Is(observer.attempts[0].Err, wol.ErrTransmit) {
		t.Errorf("observer attempts = %+v", observer.attempts)
	}
}

func TestWake_ConcurrentWakesAreIndependent(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	target := []wol.Destination{{Addr: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}}

	reg := device.NewRegistry()
	macs := []address.HardwareAddress{
		address.MustParseHardwareAddress("00:00:00:00:00:01"),
		address.MustParseHardwareAddress("00:00:00:00:00:02"),
	}
	keys := make([]string, len(macs))
	for i, mac := range macs {
		keys[i], err = reg.Add(context.Background(), "dev", mac, nil, target)
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	svc := NewService(Config{}, reg, wol.NewTransmitter(time.Second), nil)

	var wg sync.WaitGroup
	errs := make([]error, len(keys))
	for i, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = svc.Wake(context.Background(), key)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Wake(%s) error = %v", keys[i], err)
		}
	}

	got := map[address.HardwareAddress]bool{}
	buf := make([]byte, 256)
	for range macs {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test helper
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		mac, err := wol.ParsePacket(buf[:n])
		if err != nil {
			t.Fatalf("ParsePacket: %v", err)
		}
		got[mac] = true
	}
	for _, mac := range macs {
		if !got[mac] {
			t.Errorf("no packet received for %v", mac)
		}
	}
}
