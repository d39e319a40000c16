// Package waker turns a device key into a magic packet on the wire.
//
// Wake looks the device up in the registry, builds the packet for its
// hardware address, sends it to the device's wake targets (or the default
// broadcast destinations) and asks the monitor to re-check the device
// shortly afterwards.
package waker

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/wol"
)

// DefaultProbeDelay is how long after a wake the device is re-checked.
const DefaultProbeDelay = 3 * time.Second

// Registry is the subset of device.Registry used by the Service.
type Registry interface {
	Get(key string) (device.Device, error)
}

// Sender transmits a payload. *wol.Transmitter satisfies it.
type Sender interface {
	Send(ctx context.Context, payload []byte, destinations []wol.Destination) error
}

// Checker schedules an out-of-cycle reachability check.
// *monitor.Scheduler satisfies it.
type Checker interface {
	CheckSoon(key string, delay time.Duration)
}

// Observer is told about every wake attempt that reached the transmitter.
type Observer interface {
	WakeAttempted(ctx context.Context, attempt Attempt)
}

// Attempt describes one wake request.
type Attempt struct {
	Device       device.Device
	Destinations []wol.Destination
	At           time.Time
	Err          error
}

// Logger defines the logging interface used by the Service.
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

// Config holds wake settings.
type Config struct {
	// Broadcast is the default destination address. The zero value means
	// 255.255.255.255.
	Broadcast netip.Addr

	// Ports are the default destination ports. Empty means 9 and 7.
	Ports []uint16

	// ProbeDelay is passed to Checker.CheckSoon after a successful send.
	ProbeDelay time.Duration
}

// Service performs wake requests. It is safe for concurrent use.
type Service struct {
	registry Registry
	sender   Sender
	checker  Checker
	defaults []wol.Destination
	delay    time.Duration
	logger   Logger

	observersMu sync.RWMutex
	observers   []Observer
}

// NewService creates a wake service. checker may be nil.
func NewService(cfg Config, registry Registry, sender Sender, checker Checker) *Service {
	delay := cfg.ProbeDelay
	if delay <= 0 {
		delay = DefaultProbeDelay
	}
	return &Service{
		registry: registry,
		sender:   sender,
		checker:  checker,
		defaults: wol.DefaultDestinations(cfg.Broadcast, cfg.Ports),
		delay:    delay,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// AddObserver registers o for every subsequent wake attempt.
func (s *Service) AddObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// Destinations returns where a wake for d would be sent.
func (s *Service) Destinations(d device.Device) []wol.Destination {
	if len(d.WakeTargets) > 0 {
		return d.WakeTargets
	}
	return s.defaults
}

// Wake sends a magic packet for the device with the given key.
//
// An unknown key returns an error wrapping device.ErrDeviceNotFound and
// nothing is sent. A transmit failure returns an error wrapping
// wol.ErrTransmit. Success only means the packet left this host.
func (s *Service) Wake(ctx context.Context, key string) error {
	d, err := s.registry.Get(key)
	if err != nil {
		return err
	}

	dests := s.Destinations(d)
	pkt := wol.NewPacket(d.HardwareAddress)
	sendErr := s.sender.Send(ctx, pkt.Bytes(), dests)

	s.notify(ctx, Attempt{Device: d, Destinations: dests, At: time.Now().UTC(), Err: sendErr})

	if sendErr != nil {
		s.logger.Warn("wake failed", "device_id", key, "label", d.Label, "error", sendErr)
		return fmt.Errorf("waking %s: %w", d.Label, sendErr)
	}

	s.logger.Info("wake packet sent",
		"device_id", key,
		"label", d.Label,
		"mac", d.HardwareAddress.String(),
		"destinations", len(dests),
	)

	if s.checker != nil {
		s.checker.CheckSoon(key, s.delay)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, a Attempt) {
	s.observersMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observersMu.RUnlock()

	for _, o := range observers {
		o.WakeAttempted(ctx, a)
	}
}
