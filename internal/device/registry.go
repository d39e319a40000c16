package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the ordered, in-memory source of truth for devices.
//
// Mutations are committed under a single lock; readers always get deep
// copies of fully committed state. When a Store is attached (via Load),
// every mutation is saved after it commits.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices []*Device           // Display order
	issued  map[string]struct{} // Every key ever handed out, including removed ones
	version uint64
	nextSeq uint64

	watchMu   sync.Mutex
	watchers  map[int]chan struct{}
	nextWatch int

	hookMu      sync.RWMutex
	removeHooks []func(key string)

	store  Store
	saveMu sync.Mutex // Serialises saves

	logger Logger
	newID  func() string
	now    func() time.Time
}

// NewRegistry creates an empty registry with no store attached.
func NewRegistry() *Registry {
	return &Registry{
		issued:   make(map[string]struct{}),
		watchers: make(map[int]chan struct{}),
		logger:   noopLogger{},
		newID:    GenerateID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers a new device at the end of the list and returns its key.
//
// If the device was committed but saving failed, the key is returned
// together with an error wrapping ErrPersist.
func (r *Registry) Add(ctx context.Context, label string, hw address.HardwareAddress, endpoints []address.HostEndpoint, wakeTargets []wol.Destination) (string, error) {
	d := &Device{
		Label:           label,
		HardwareAddress: hw,
		Endpoints:       append([]address.HostEndpoint(nil), endpoints...),
		WakeTargets:     append([]wol.Destination(nil), wakeTargets...),
	}
	if err := ValidateDevice(d); err != nil {
		return "", err
	}

	r.mu.Lock()
	d.ID = r.uniqueIDLocked()
	d.Seq = r.nextSeq
	r.nextSeq++
	d.CreatedAt = r.now()
	d.UpdatedAt = d.CreatedAt
	r.devices = append(r.devices, d)
	r.version++
	r.mu.Unlock()

	r.logger.Info("device added", "id", d.ID, "label", d.Label, "mac", d.HardwareAddress.String())
	r.notify()

	return d.ID, r.persist(ctx)
}

// uniqueIDLocked returns a key never issued before. Caller holds r.mu.
func (r *Registry) uniqueIDLocked() string {
	for {
		id := r.newID()
		if _, used := r.issued[id]; !used {
			r.issued[id] = struct{}{}
			return id
		}
	}
}

// Update applies changes to the device with the given key.
// Returns ErrDeviceNotFound if the key does not exist.
func (r *Registry) Update(ctx context.Context, key string, changes Changes) error {
	r.mu.Lock()
	idx := r.indexLocked(key)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}

	updated := r.devices[idx].DeepCopy()
	if changes.Label != nil {
		updated.Label = *changes.Label
	}
	if changes.HardwareAddress != nil {
		updated.HardwareAddress = *changes.HardwareAddress
	}
	if changes.Endpoints != nil {
		updated.Endpoints = append([]address.HostEndpoint(nil), (*changes.Endpoints)...)
	}
	if changes.WakeTargets != nil {
		updated.WakeTargets = append([]wol.Destination(nil), (*changes.WakeTargets)...)
	}
	if err := ValidateDevice(updated); err != nil {
		r.mu.Unlock()
		return err
	}

	updated.UpdatedAt = r.now()
	r.devices[idx] = updated
	r.version++
	r.mu.Unlock()

	r.logger.Info("device updated", "id", key, "label", updated.Label)
	r.notify()

	return r.persist(ctx)
}

// Remove deletes the device with the given key.
//
// Removal hooks run before Remove returns, so a caller observing the return
// can rely on every hook having seen the removal. The key is never reused.
func (r *Registry) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	idx := r.indexLocked(key)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	r.devices = append(r.devices[:idx], r.devices[idx+1:]...)
	r.version++
	r.mu.Unlock()

	r.hookMu.RLock()
	hooks := append([]func(string){}, r.removeHooks...)
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(key)
	}

	r.logger.Info("device removed", "id", key)
	r.notify()

	return r.persist(ctx)
}

// Reorder moves the device with the given key to index, shifting the others.
// Returns ErrInvalidPosition if index is outside [0, len).
func (r *Registry) Reorder(ctx context.Context, key string, index int) error {
	r.mu.Lock()
	from := r.indexLocked(key)
	if from < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	if index < 0 || index >= len(r.devices) {
		n := len(r.devices)
		r.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidPosition, index, n)
	}
	if from == index {
		r.mu.Unlock()
		return nil
	}

	d := r.devices[from]
	r.devices = append(r.devices[:from], r.devices[from+1:]...)
	r.devices = append(r.devices[:index], append([]*Device{d}, r.devices[index:]...)...)
	r.version++
	r.mu.Unlock()

	r.logger.Debug("device reordered", "id", key, "from", from, "to", index)
	r.notify()

	return r.persist(ctx)
}

// List returns a snapshot of all devices in display order.
func (r *Registry) List() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	devices := make([]Device, len(r.devices))
	for i, d := range r.devices {
		devices[i] = *d.DeepCopy()
	}
	return Snapshot{Version: r.version, Devices: devices}
}

// Get retrieves a device by key.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(key string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(key)
	if idx < 0 {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	return *r.devices[idx].DeepCopy(), nil
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *Registry) indexLocked(key string) int {
	for i, d := range r.devices {
		if d.ID == key {
			return i
		}
	}
	return -1
}

// Watch returns a channel that receives a value after committed mutations.
// Signals coalesce: a slow reader sees one pending signal, not one per
// mutation, and should call List to get the current state. The returned
// function stops the watch.
func (r *Registry) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	r.watchMu.Lock()
	id := r.nextWatch
	r.nextWatch++
	r.watchers[id] = ch
	r.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.watchMu.Lock()
			delete(r.watchers, id)
			r.watchMu.Unlock()
		})
	}
}

func (r *Registry) notify() {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	for _, ch := range r.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// OnRemove registers a hook that runs synchronously after a removal commits.
// Hooks must not call back into Remove.
func (r *Registry) OnRemove(hook func(key string)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.removeHooks = append(r.removeHooks, hook)
}

// Load replaces the registry contents with the store's devices and attaches
// the store for subsequent saves. Sequence numbers are reassigned in load
// order. Records that fail validation or repeat a key are rejected.
func (r *Registry) Load(ctx context.Context, store Store) error {
	loaded, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	devices := make([]*Device, 0, len(loaded))
	seen := make(map[string]struct{}, len(loaded))
	now := r.now()
	for i := range loaded {
		d := loaded[i].DeepCopy()
		if d.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ErrInvalidDevice, i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidDevice, d.ID)
		}
		seen[d.ID] = struct{}{}
		if err := ValidateDevice(d); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if d.UpdatedAt.IsZero() {
			d.UpdatedAt = d.CreatedAt
		}
		devices = append(devices, d)
	}

	r.mu.Lock()
	r.devices = devices
	r.nextSeq = 0
	for _, d := range r.devices {
		d.Seq = r.nextSeq
		r.nextSeq++
		r.issued[d.ID] = struct{}{}
	}
	r.version++
	r.store = store
	r.mu.Unlock()

	r.logger.Info("devices loaded", "count", len(devices))
	r.notify()
	return nil
}

// Save writes the current snapshot to the attached store.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.RLock()
	attached := r.store != nil
	r.mu.RUnlock()

	if !attached {
		return fmt.Errorf("%w: no store attached", ErrPersist)
	}
	return r.persist(ctx)
}

// persist saves the newest snapshot if a store is attached. Saves are
// serialised and the snapshot is taken inside the save lock, so a later
// save never writes older state than an earlier one.
func (r *Registry) persist(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	store := r.store
	snap := r.snapshotLocked()
	r.mu.RUnlock()

	if store == nil {
		return nil
	}

	if err := store.Save(ctx, snap.Devices); err != nil {
		r.logger.Error("saving devices failed", "version", snap.Version, "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	r.logger.Debug("devices saved", "version", snap.Version, "count", len(snap.Devices))
	return nil
}
