package statusbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/infrastructure/mqtt"
	"github.com/nerrad567/lanwake/internal/monitor"
	"github.com/nerrad567/lanwake/internal/waker"
)

// defaultCommandTimeout bounds a wake triggered by an MQTT command.
const defaultCommandTimeout = 10 * time.Second

// Source supplies status events. *monitor.Scheduler satisfies it.
type Source interface {
	Subscribe() *monitor.Subscription
}

// Registry is the subset of device.Registry the bridge uses.
type Registry interface {
	Get(key string) (device.Device, error)
	OnRemove(hook func(key string))
}

// Publisher is the subset of *mqtt.Client the bridge uses.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
}

// Recorder is the subset of *influxdb.Client the bridge uses.
type Recorder interface {
	WriteStatusChange(deviceID, status, previous string, at time.Time)
	WriteWake(deviceID string, destinations int, sendErr error, at time.Time)
}

// Waker performs wakes requested over MQTT. *waker.Service satisfies it.
type Waker interface {
	Wake(ctx context.Context, key string) error
}

// Logger defines the logging interface used by the Bridge.
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

// StatusMessage is the retained MQTT payload for a device's status.
type StatusMessage struct {
	DeviceID  string         `json:"device_id"`
	Label     string         `json:"label"`
	Status    monitor.Status `json:"status"`
	Previous  monitor.Status `json:"previous,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WakeMessage reports a wake attempt over MQTT.
type WakeMessage struct {
	DeviceID     string    `json:"device_id"`
	Label        string    `json:"label"`
	Destinations []string  `json:"destinations"`
	Result       string    `json:"result"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMQTT publishes statuses and wake reports to pub. When w is non-nil,
// wake commands received on pub are forwarded to it.
func WithMQTT(pub Publisher, w Waker) Option {
	return func(b *Bridge) {
		b.pub = pub
		b.waker = w
	}
}

// WithRecorder writes status changes and wake attempts to rec.
func WithRecorder(rec Recorder) Option {
	return func(b *Bridge) {
		b.rec = rec
	}
}

// WithCommandTimeout bounds each wake triggered over MQTT.
func WithCommandTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.commandTimeout = d
		}
	}
}

// Bridge relays monitor events and wake attempts to MQTT and InfluxDB.
type Bridge struct {
	registry Registry
	pub      Publisher
	rec      Recorder
	waker    Waker
	logger   Logger

	commandTimeout time.Duration

	sub *monitor.Subscription

	// removed holds every key the registry has dropped. Events for them are
	// discarded. cleared lists keys whose retained status Run has yet to
	// delete; clearSignal wakes Run when it grows.
	mu          sync.Mutex
	removed     map[string]struct{}
	cleared     []string
	clearSignal chan struct{}

	baseCtx context.Context //nolint:containedctx // Scoped to Run for MQTT command handlers
}

// New creates a Bridge, subscribes it to source and registers its removal
// hook with registry. Events are buffered from this point on, so Run must
// be called to consume them.
func New(source Source, registry Registry, opts ...Option) *Bridge {
	b := &Bridge{
		registry:       registry,
		logger:         noopLogger{},
		commandTimeout: defaultCommandTimeout,
		removed:        make(map[string]struct{}),
		clearSignal:    make(chan struct{}, 1),
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sub = source.Subscribe()
	registry.OnRemove(b.forget)
	return b
}

// SetLogger sets the logger for the Bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Run relays events until ctx is cancelled or the event stream closes.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.sub
	defer sub.Close()

	b.mu.Lock()
	b.baseCtx = ctx
	b.mu.Unlock()

	if b.pub != nil && b.waker != nil {
		topic := b.pub.Topics().AllWakeCommands()
		if err := b.pub.Subscribe(topic, 1, b.handleWakeCommand); err != nil {
			b.logger.Warn("wake commands over MQTT unavailable", "topic", topic, "error", err)
		} else {
			defer func() {
				if err := b.pub.Unsubscribe(topic); err != nil {
					b.logger.Debug("unsubscribing wake commands", "error", err)
				}
			}()
		}
	}

	for {
		select {
		case <-ctx.Done():
			b.clearRetained()
			return nil
		case <-b.clearSignal:
			b.clearRetained()
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			b.relay(e)
		}
	}
}

func (b *Bridge) isRemoved(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, gone := b.removed[key]
	return gone
}

// relay and clearRetained both run on the Run goroutine, so a clear queued
// by forget is always published after any status relayed before it.
func (b *Bridge) relay(e monitor.Event) {
	if b.isRemoved(e.DeviceID) {
		return
	}

	if b.rec != nil {
		b.rec.WriteStatusChange(e.DeviceID, string(e.Status), string(e.Previous), e.At)
	}

	if b.pub == nil {
		return
	}

	msg := StatusMessage{
		DeviceID:  e.DeviceID,
		Status:    e.Status,
		Previous:  e.Previous,
		Timestamp: e.At.UTC(),
	}
	if d, err := b.registry.Get(e.DeviceID); err == nil {
		msg.Label = d.Label
	}

	if err := b.pub.PublishJSON(b.pub.Topics().DeviceStatus(e.DeviceID), msg, true); err != nil {
		b.logger.Warn("publishing device status", "device_id", e.DeviceID, "status", e.Status, "error", err)
	}
}

// forget runs synchronously inside device.Registry.Remove and must not
// block. It only records the key; Run deletes the retained status.
func (b *Bridge) forget(key string) {
	b.mu.Lock()
	b.removed[key] = struct{}{}
	if b.pub != nil {
		b.cleared = append(b.cleared, key)
	}
	b.mu.Unlock()

	select {
	case b.clearSignal <- struct{}{}:
	default:
	}
}

func (b *Bridge) clearRetained() {
	b.mu.Lock()
	keys := b.cleared
	b.cleared = nil
	b.mu.Unlock()

	for _, key := range keys {
		// An empty retained payload deletes the retained message.
		if err := b.pub.PublishRetained(b.pub.Topics().DeviceStatus(key), nil); err != nil {
			b.logger.Warn("clearing retained status", "device_id", key, "error", err)
		}
	}
}

func (b *Bridge) handleWakeCommand(topic string, _ []byte) error {
	key, ok := b.pub.Topics().WakeCommandDevice(topic)
	if !ok {
		return nil
	}

	b.mu.Lock()
	parent := b.baseCtx
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, b.commandTimeout)
	defer cancel()

	b.logger.Info("wake requested over MQTT", "device_id", key)
	err := b.waker.Wake(ctx, key)
	if errors.Is(err, device.ErrDeviceNotFound) {
		b.logger.Warn("wake command for unknown device", "device_id", key)
		return nil
	}
	return err
}

// WakeAttempted implements waker.Observer.
func (b *Bridge) WakeAttempted(_ context.Context, a waker.Attempt) {
	if b.rec != nil {
		b.rec.WriteWake(a.Device.ID, len(a.Destinations), a.Err, a.At)
	}
	if b.pub == nil {
		return
	}

	msg := WakeMessage{
		DeviceID:     a.Device.ID,
		Label:        a.Device.Label,
		Destinations: make([]string, 0, len(a.Destinations)),
		Result:       "sent",
		Timestamp:    a.At.UTC(),
	}
	for _, d := range a.Destinations {
		msg.Destinations = append(msg.Destinations, d.String())
	}
	if a.Err != nil {
		msg.Result = "failed"
		msg.Error = a.Err.Error()
	}

	if err := b.pub.PublishJSON(b.pub.Topics().WakeEvent(a.Device.ID), msg, false); err != nil {
		b.logger.Warn("publishing wake event", "device_id", a.Device.ID, "error", err)
	}
}

var _ waker.Observer = (*Bridge)(nil)
