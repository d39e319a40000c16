package monitor

import (
	"sync"
)

// Status is a device's reachability as last observed.
type Status string

// Status values.
const (
	StatusUnknown  Status = "unknown"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusChecking Status = "checking"
)

// AllStatuses returns every valid status.
func AllStatuses() []Status {
	return []Status{StatusUnknown, StatusOnline, StatusOffline, StatusChecking}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOnline, StatusOffline, StatusChecking:
		return true
	}
	return false
}

// allowedTransitions lists the legal targets for each status.
// Self-transitions are handled separately as no-ops.
var allowedTransitions = map[Status][]Status{
	StatusUnknown:  {StatusChecking, StatusOnline, StatusOffline},
	StatusChecking: {StatusOnline, StatusOffline, StatusUnknown},
	StatusOnline:   {StatusOffline, StatusChecking, StatusUnknown},
	StatusOffline:  {StatusOnline, StatusChecking, StatusUnknown},
}

// CanTransition reports whether a device may move from one status to
// another. A self-transition is always allowed and publishes nothing.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Board holds the current status of every monitored device.
// Only the Scheduler writes to it.
type Board struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{statuses: make(map[string]Status)}
}

// Status returns the status of key, or StatusUnknown if it is not tracked.
func (b *Board) Status(key string) Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.statuses[key]; ok {
		return s
	}
	return StatusUnknown
}

// Tracked reports whether key is on the board.
func (b *Board) Tracked(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.statuses[key]
	return ok
}

// Statuses returns a copy of all statuses.
func (b *Board) Statuses() map[string]Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Status, len(b.statuses))
	for k, v := range b.statuses {
		out[k] = v
	}
	return out
}

func (b *Board) set(key string, s Status) {
	b.mu.Lock()
	b.statuses[key] = s
	b.mu.Unlock()
}

func (b *Board) delete(key string) {
	b.mu.Lock()
	delete(b.statuses, key)
	b.mu.Unlock()
}
