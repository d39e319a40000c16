package monitor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/reachability"
)

// Default scheduling values.
const (
	DefaultInterval       = 10 * time.Second
	DefaultTimeout        = 2 * time.Second
	DefaultJitter         = 1 * time.Second
	DefaultResyncInterval = 30 * time.Second
	DefaultShutdownGrace  = 3 * time.Second
)

// Config holds scheduler timing. Zero values take the defaults above,
// except Jitter where a negative value disables jitter.
type Config struct {
	// Interval is the pause between checks of one device.
	Interval time.Duration

	// Timeout bounds a single check.
	Timeout time.Duration

	// Jitter adds a random delay in [0, Jitter) before the first check and
	// to every interval, so devices do not all probe at once.
	Jitter time.Duration

	// ResyncInterval is how often the registry is re-read even without a
	// change notification.
	ResyncInterval time.Duration

	// ShutdownGrace bounds how long Stop waits for loops to exit.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = DefaultResyncInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// Registry is the subset of device.Registry the scheduler needs.
type Registry interface {
	List() device.Snapshot
	Get(key string) (device.Device, error)
	Watch() (<-chan struct{}, func())
	OnRemove(hook func(key string))
}

// Prober checks a device's endpoints. *reachability.Prober satisfies it.
type Prober interface {
	ProbeAll(ctx context.Context, endpoints []address.HostEndpoint, timeout time.Duration) reachability.Result
}

// Logger defines the logging interface used by the Scheduler.
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

// task is the handle of one device's polling loop.
type task struct {
	gen    uint64
	cancel context.CancelFunc
	soon   chan time.Duration
}

// Scheduler runs one polling loop per registered device.
type Scheduler struct {
	cfg      Config
	registry Registry
	prober   Prober
	board    *Board
	broker   *Broker
	logger   Logger

	mu      sync.Mutex // Guards tasks, removed and every publication
	tasks   map[string]*task
	removed map[string]struct{}
	nextGen uint64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	stopOnce sync.Once
}

// NewScheduler creates a scheduler. Call Start to begin monitoring.
func NewScheduler(cfg Config, registry Registry, prober Prober) *Scheduler {
	s := &Scheduler{
		cfg:      cfg.withDefaults(),
		registry: registry,
		prober:   prober,
		board:    NewBoard(),
		broker:   NewBroker(),
		logger:   noopLogger{},
		tasks:    make(map[string]*task),
		removed:  make(map[string]struct{}),
	}
	registry.OnRemove(s.detach)
	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Start begins monitoring every device in the registry and follows
// registry changes until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	changes, unwatch := s.registry.Watch()
	s.reconcile()

	s.wg.Add(1)
	go s.watchLoop(changes, unwatch)

	s.logger.Info("monitor started",
		"interval", s.cfg.Interval.String(),
		"timeout", s.cfg.Timeout.String(),
		"jitter", s.cfg.Jitter.String(),
	)
}

// Stop cancels every loop and waits up to the shutdown grace period for
// them to exit, then closes all subscriptions. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		if s.cancel != nil {
			s.cancel()
		}
		for key, t := range s.tasks {
			t.cancel()
			delete(s.tasks, key)
		}
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("monitor stopped")
		case <-time.After(s.cfg.ShutdownGrace):
			s.logger.Warn("monitor loops still running after grace period", "grace", s.cfg.ShutdownGrace.String())
		}

		s.broker.Close()
	})
}

// Subscribe returns a stream of status changes.
func (s *Scheduler) Subscribe() *Subscription {
	return s.broker.Subscribe()
}

// Status returns the current status of key.
func (s *Scheduler) Status(key string) Status {
	return s.board.Status(key)
}

// Statuses returns the current status of every monitored device.
func (s *Scheduler) Statuses() map[string]Status {
	return s.board.Statuses()
}

// CheckSoon asks the loop for key to run its next check after delay
// instead of waiting out the rest of its interval. Unknown keys are ignored.
func (s *Scheduler) CheckSoon(key string, delay time.Duration) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	// Keep only the newest hint.
	for {
		select {
		case t.soon <- delay:
			return
		default:
		}
		select {
		case <-t.soon:
		default:
		}
	}
}

func (s *Scheduler) watchLoop(changes <-chan struct{}, unwatch func()) {
	defer s.wg.Done()
	defer unwatch()

	ticker := time.NewTicker(s.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-changes:
			s.reconcile()
		case <-ticker.C:
			s.reconcile()
		}
	}
}

// reconcile starts loops for new devices and stops loops for devices no
// longer in the registry.
func (s *Scheduler) reconcile() {
	snap := s.registry.List()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	present := make(map[string]struct{}, len(snap.Devices))
	for _, d := range snap.Devices {
		present[d.ID] = struct{}{}
		if _, tracked := s.tasks[d.ID]; tracked {
			continue
		}
		// The snapshot may predate a removal that already ran its hook.
		if _, gone := s.removed[d.ID]; gone {
			continue
		}
		s.startLocked(d.ID)
	}

	for key := range s.tasks {
		if _, ok := present[key]; !ok {
			s.stopLocked(key)
		}
	}
}

// detach is the registry removal hook. It runs before Registry.Remove
// returns, so no result for key is published after that.
func (s *Scheduler) detach(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removed[key] = struct{}{}
	if _, ok := s.tasks[key]; ok {
		s.stopLocked(key)
	}
}

func (s *Scheduler) startLocked(key string) {
	s.nextGen++
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{gen: s.nextGen, cancel: cancel, soon: make(chan time.Duration, 1)}
	s.tasks[key] = t

	s.board.set(key, StatusUnknown)
	s.broker.Publish(Event{DeviceID: key, Status: StatusUnknown, At: time.Now()})

	s.wg.Add(1)
	go s.loop(ctx, key, t)

	s.logger.Debug("monitoring started", "device_id", key)
}

func (s *Scheduler) stopLocked(key string) {
	t := s.tasks[key]
	t.cancel()
	delete(s.tasks, key)
	s.board.delete(key)

	s.logger.Debug("monitoring stopped", "device_id", key)
}

// loop is one device's polling loop.
func (s *Scheduler) loop(ctx context.Context, key string, t *task) {
	defer s.wg.Done()

	if !s.wait(ctx, t, s.jitter()) {
		return
	}

	for {
		d, err := s.registry.Get(key)
		if err != nil {
			// Removed; detach or reconcile will cancel us.
			return
		}

		if len(d.Endpoints) == 0 {
			s.publish(key, t.gen, StatusUnknown, true)
		} else {
			s.publish(key, t.gen, StatusChecking, false)

			res := s.prober.ProbeAll(ctx, d.Endpoints, s.cfg.Timeout)
			if ctx.Err() != nil {
				return
			}

			status := StatusOffline
			if res.Online() {
				status = StatusOnline
			}
			s.publish(key, t.gen, status, true)
		}

		if !s.wait(ctx, t, s.cfg.Interval+s.jitter()) {
			return
		}
	}
}

// wait sleeps for d, or for a shorter delay requested via CheckSoon.
// It returns false when ctx is done.
func (s *Scheduler) wait(ctx context.Context, t *task, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case delay := <-t.soon:
			timer.Stop()
			timer.Reset(delay)
		}
	}
}

func (s *Scheduler) jitter() time.Duration {
	if s.cfg.Jitter <= 0 {
		return 0
	}
	return rand.N(s.cfg.Jitter)
}

// publish records status for key if the loop that produced it is still
// current and the status actually changes. Checking is only shown while
// the device is still Unknown, so later checks keep the last result
// visible. Everything happens under s.mu, which gives strict per-device
// ordering and lets removal discard in-flight results.
func (s *Scheduler) publish(key string, gen uint64, status Status, overwrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok || t.gen != gen {
		return
	}

	prev := s.board.Status(key)
	if prev == status {
		return
	}
	if !overwrite && prev != StatusUnknown {
		return
	}
	if !CanTransition(prev, status) {
		s.logger.Warn("invalid status transition", "device_id", key, "from", prev, "to", status)
		return
	}

	s.board.set(key, status)
	s.broker.Publish(Event{DeviceID: key, Status: status, Previous: prev, At: time.Now()})

	if status != StatusChecking {
		s.logger.Debug("device status changed", "device_id", key, "from", prev, "to", status)
	}
}

// generation returns the loop generation for key, or 0 if untracked.
func (s *Scheduler) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok {
		return t.gen
	}
	return 0
}
