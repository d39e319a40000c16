package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// MockStore is a test implementation of Store.
type MockStore struct {
	mu      sync.Mutex
	devices []Device
	saves   int
	loadErr error
	saveErr error
}

func (m *MockStore) Load(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]Device, len(m.devices))
	for i := range m.devices {
		out[i] = *m.devices[i].DeepCopy()
	}
	return out, nil
}

func (m *MockStore) Save(_ context.Context, devices []Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.devices = make([]Device, len(devices))
	for i := range devices {
		m.devices[i] = *devices[i].DeepCopy()
	}
	return nil
}

func (m *MockStore) saved() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Device(nil), m.devices...)
}

var testMAC = address.MustParseHardwareAddress("26:ce:55:a5:c2:33")

func mustAdd(t *testing.T, r *Registry, label string) string {
	t.Helper()
	key, err := r.Add(context.Background(), label, testMAC, nil, nil)
	if err != nil {
		t.Fatalf("Add(%q) error = %v", label, err)
	}
	return key
}

func labels(s Snapshot) []string {
	out := make([]string, len(s.Devices))
	for i, d := range s.Devices {
		out[i] = d.Label
	}
	return out
}

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry()
	endpoints := []address.HostEndpoint{{Host: "nas.local", Port: 22}, {Host: "10.0.0.5"}}

	key, err := r.Add(context.Background(), "  NAS  ", testMAC, endpoints, nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if key == "" {
		t.Fatal("Add() returned empty key")
	}

	d, err := r.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Label != "NAS" {
		t.Errorf("Label = %q, want trimmed %q", d.Label, "NAS")
	}
	if d.HardwareAddress != testMAC {
		t.Errorf("HardwareAddress = %v, want %v", d.HardwareAddress, testMAC)
	}
	if len(d.Endpoints) != 2 {
		t.Errorf("Endpoints = %v, want 2 entries", d.Endpoints)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	// Callers get copies.
	d.Endpoints[0].Host = "mutated"
	again, _ := r.Get(key)
	if again.Endpoints[0].Host != "nas.local" {
		t.Error("Get() result aliases registry state")
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ListOrderAndVersion(t *testing.T) {
	r := NewRegistry()
	start := r.List().Version

	mustAdd(t, r, "a")
	mustAdd(t, r, "b")
	mustAdd(t, r, "c")

	snap := r.List()
	if got := strings.Join(labels(snap), ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
	if snap.Version != start+3 {
		t.Errorf("Version = %d, want %d", snap.Version, start+3)
	}
	for i, d := range snap.Devices {
		if d.Seq != uint64(i) {
			t.Errorf("device %s Seq = %d, want %d", d.Label, d.Seq, i)
		}
	}
}

func TestRegistry_AddValidation(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	tooMany := make([]address.HostEndpoint, maxEndpoints+1)
	for i := range tooMany {
		tooMany[i] = address.HostEndpoint{Host: "h", Port: i + 1}
	}
	tooManyTargets := wol.DefaultDestinations(wol.LimitedBroadcast, make([]uint16, maxWakeTargets+1))

	tests := []struct {
		name      string
		label     string
		endpoints []address.HostEndpoint
		targets   []wol.Destination
		wantErr   error
	}{
		{name: "empty label", label: "", wantErr: ErrInvalidName},
		{name: "blank label", label: "   ", wantErr: ErrInvalidName},
		{name: "long label", label: strings.Repeat("x", 101), wantErr: ErrInvalidName},
		{name: "too many endpoints", label: "ok", endpoints: tooMany, wantErr: ErrInvalidDevice},
		{name: "empty endpoint host", label: "ok", endpoints: []address.HostEndpoint{{Host: ""}}, wantErr: ErrInvalidDevice},
		{name: "endpoint host with space", label: "ok", endpoints: []address.HostEndpoint{{Host: "nas box"}}, wantErr: address.ErrInvalidFormat},
		{name: "endpoint host with slash", label: "ok", endpoints: []address.HostEndpoint{{Host: "nas/1", Port: 22}}, wantErr: address.ErrInvalidFormat},
		{name: "endpoint host with padding", label: "ok", endpoints: []address.HostEndpoint{{Host: " nas"}}, wantErr: ErrInvalidDevice},
		{name: "hostname with colon", label: "ok", endpoints: []address.HostEndpoint{{Host: "nas:22"}}, wantErr: address.ErrInvalidFormat},
		{name: "too many wake targets", label: "ok", targets: tooManyTargets, wantErr: ErrInvalidDevice},
		{name: "zero wake target", label: "ok", targets: []wol.Destination{{}}, wantErr: ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(ctx, tt.label, testMAC, tt.endpoints, tt.targets)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d after rejected adds, want 0", r.Len())
	}

	// 100 characters exactly is fine.
	if _, err := r.Add(ctx, strings.Repeat("é", 100), testMAC, nil, nil); err != nil {
		t.Errorf("Add() with 100-rune label error = %v", err)
	}
}

func TestRegistry_DuplicateEndpointsCollapse(t *testing.T) {
	r := NewRegistry()
	eps := []address.HostEndpoint{{Host: "pc", Port: 22}, {Host: "pc", Port: 22}, {Host: "pc"}}

	key, err := r.Add(context.Background(), "pc", testMAC, eps, nil)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	d, _ := r.Get(key)
	if len(d.Endpoints) != 2 {
		t.Errorf("Endpoints = %v, want duplicates removed", d.Endpoints)
	}
}

func TestRegistry_KeysNeverReused(t *testing.T) {
	r := NewRegistry()
	ids := []string{"k1", "k1", "k2"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := mustAdd(t, r, "first")
	if err := r.Remove(context.Background(), first); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	second := mustAdd(t, r, "second")

	if first != "k1" || second != "k2" {
		t.Errorf("keys = %s, %s; want k1, k2", first, second)
	}
}

func TestRegistry_Update(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	key := mustAdd(t, r, "old")

	label := "new"
	mac := address.MustParseHardwareAddress("00:11:22:33:44:55")
	eps := []address.HostEndpoint{{Host: "10.1.1.1", Port: 3389}}
	targets := wol.DefaultDestinations(wol.LimitedBroadcast, []uint16{9})

	if err := r.Update(ctx, key, Changes{Label: &label, HardwareAddress: &mac, Endpoints: &eps, WakeTargets: &targets}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	d, _ := r.Get(key)
	if d.Label != "new" || d.HardwareAddress != mac || len(d.Endpoints) != 1 || len(d.WakeTargets) != 1 {
		t.Errorf("device after update = %+v", d)
	}

	t.Run("invalid change is not applied", func(t *testing.T) {
		empty := ""
		if err := r.Update(ctx, key, Changes{Label: &empty}); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Update() error = %v, want ErrInvalidName", err)
		}
		d, _ := r.Get(key)
		if d.Label != "new" {
			t.Errorf("Label = %q after rejected update", d.Label)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if err := r.Update(ctx, "missing", Changes{Label: &label}); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestRegistry_RemoveRunsHooksBeforeReturn(t *testing.T) {
	r := NewRegistry()
	key := mustAdd(t, r, "victim")

	var removed []string
	r.OnRemove(func(k string) {
		removed = append(removed, k)
	})

	if err := r.Remove(context.Background(), key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != key {
		t.Errorf("hook saw %v, want [%s]", removed, key)
	}
	if _, err := r.Get(key); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() after remove error = %v", err)
	}
	if err := r.Remove(context.Background(), key); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_Reorder(t *testing.T) {
	tests := []struct {
		name  string
		move  string
		index int
		want  string
	}{
		{name: "to front", move: "c", index: 0, want: "c,a,b,d"},
		{name: "to back", move: "a", index: 3, want: "b,c,d,a"},
		{name: "forward", move: "a", index: 2, want: "b,c,a,d"},
		{name: "backward", move: "d", index: 1, want: "a,d,b,c"},
		{name: "same place", move: "b", index: 1, want: "a,b,c,d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			keys := map[string]string{}
			for _, l := range []string{"a", "b", "c", "d"} {
				keys[l] = mustAdd(t, r, l)
			}

			if err := r.Reorder(context.Background(), keys[tt.move], tt.index); err != nil {
				t.Fatalf("Reorder() error = %v", err)
			}
			snap := r.List()
			if got := strings.Join(labels(snap), ","); got != tt.want {
				t.Errorf("order = %s, want %s", got, tt.want)
			}
			for _, d := range snap.Devices {
				if d.Label != string(rune('a'+d.Seq)) {
					t.Errorf("Seq of %s changed to %d", d.Label, d.Seq)
				}
			}
		})
	}
}

func TestRegistry_ReorderErrors(t *testing.T) {
	r := NewRegistry()
	key := mustAdd(t, r, "a")
	mustAdd(t, r, "b")

	for _, idx := range []int{-1, 2, 100} {
		if err := r.Reorder(context.Background(), key, idx); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("Reorder(%d) error = %v, want ErrInvalidPosition", idx, err)
		}
	}
	if err := r.Reorder(context.Background(), "missing", 0); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Reorder(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_WatchCoalesces(t *testing.T) {
	r := NewRegistry()
	ch, stop := r.Watch()
	defer stop()

	mustAdd(t, r, "a")
	mustAdd(t, r, "b")
	mustAdd(t, r, "c")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no watch signal")
	}
	select {
	case <-ch:
		t.Error("expected signals to coalesce into one")
	default:
	}

	stop()
	mustAdd(t, r, "d")
	select {
	case <-ch:
		t.Error("signal after stop")
	default:
	}
}

func TestRegistry_LoadAndPersist(t *testing.T) {
	store := &MockStore{devices: []Device{
		{ID: "id-1", Label: "one", HardwareAddress: testMAC},
		{ID: "id-2", Label: "two", HardwareAddress: testMAC, Endpoints: []address.HostEndpoint{{Host: "two.lan"}}},
	}}

	r := NewRegistry()
	if err := r.Load(context.Background(), store); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := r.List()
	if got := strings.Join(snap.Keys(), ","); got != "id-1,id-2" {
		t.Errorf("keys = %s", got)
	}
	if snap.Devices[1].Seq != 1 {
		t.Errorf("Seq = %d, want 1", snap.Devices[1].Seq)
	}

	key := mustAdd(t, r, "three")
	saved := store.saved()
	if len(saved) != 3 || saved[2].ID != key {
		t.Fatalf("store holds %d devices after Add, want 3 ending with %s", len(saved), key)
	}
	if saved[2].Seq != 2 {
		t.Errorf("new device Seq = %d, want 2", saved[2].Seq)
	}

	if err := r.Remove(context.Background(), "id-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := len(store.saved()); got != 2 {
		t.Errorf("store holds %d devices after Remove, want 2", got)
	}
}

func TestRegistry_LoadRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		wantErr error
	}{
		{name: "duplicate id", devices: []Device{{ID: "x", Label: "a"}, {ID: "x", Label: "b"}}, wantErr: ErrInvalidDevice},
		{name: "missing id", devices: []Device{{Label: "a"}}, wantErr: ErrInvalidDevice},
		{name: "bad label", devices: []Device{{ID: "x"}}, wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Load(context.Background(), &MockStore{devices: tt.devices})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if r.Len() != 0 {
				t.Errorf("Len() = %d after failed load", r.Len())
			}
		})
	}

	t.Run("store error", func(t *testing.T) {
		r := NewRegistry()
		boom := errors.New("disk gone")
		if err := r.Load(context.Background(), &MockStore{loadErr: boom}); !errors.Is(err, boom) {
			t.Errorf("Load() error = %v, want wrapped %v", err, boom)
		}
	})
}

func TestRegistry_SaveFailureKeepsCommit(t *testing.T) {
	store := &MockStore{}
	r := NewRegistry()
	if err := r.Load(context.Background(), store); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	store.saveErr = errors.New("read-only filesystem")
	key, err := r.Add(context.Background(), "kept", testMAC, nil, nil)
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Add() error = %v, want ErrPersist", err)
	}
	if _, getErr := r.Get(key); getErr != nil {
		t.Errorf("device not committed despite persist failure: %v", getErr)
	}

	store.saveErr = nil
	if err := r.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(store.saved()) != 1 {
		t.Errorf("store holds %d devices after retry, want 1", len(store.saved()))
	}
}

func TestRegistry_SaveWithoutStore(t *testing.T) {
	r := NewRegistry()
	if err := r.Save(context.Background()); !errors.Is(err, ErrPersist) {
		t.Errorf("Save() error = %v, want ErrPersist", err)
	}
	// Mutations without a store never fail on persistence.
	mustAdd(t, r, "memory only")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	if err := r.Load(context.Background(), &MockStore{}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			key, err := r.Add(context.Background(), "dev", testMAC, nil, nil)
			if err != nil {
				t.Errorf("Add() error = %v", err)
				return
			}
			_ = r.Reorder(context.Background(), key, 0) //nolint:errcheck // Racing removes are fine
		}()
		go func() {
			defer wg.Done()
			snap := r.List()
			for _, d := range snap.Devices {
				if d.ID == "" || d.Label != "dev" {
					t.Errorf("observed partial device %+v", d)
				}
			}
		}()
	}
	wg.Wait()

	if r.Len() != 20 {
		t.Errorf("Len() = %d, want 20", r.Len())
	}
}
