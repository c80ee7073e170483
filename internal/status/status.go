// Package status tracks per-query progress so clients can poll while an
// answer is being produced.
package status

import (
	"sync"
	"time"
)

// Phase is where a query currently is in its lifecycle. Phases only move
// forward; a query never returns to loading once it has left it.
type Phase string

const (
	PhaseUnknown    Phase = "unknown"
	PhaseLoading    Phase = "loading"
	PhaseRetrieving Phase = "retrieving"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

func phaseRank(p Phase) int {
	switch p {
	case PhaseLoading:
		return 1
	case PhaseRetrieving:
		return 2
	case PhaseDone, PhaseError:
		return 3
	default:
		return 0
	}
}

// Status is one query's progress snapshot.
type Status struct {
	Phase    Phase
	Progress int
	Message  string
	Updated  time.Time
}

// DefaultCapacity bounds how many entries the tracker holds before it starts
// evicting. Finished entries go first.
const DefaultCapacity = 4096

// Tracker is a process-wide map of query id to status, guarded by one mutex.
// Entries are small and updates short, so coarse locking is fine.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]Status
	capacity int
	now      func() time.Time
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		entries:  make(map[string]Status),
		capacity: capacity,
		now:      time.Now,
	}
}

// Set records a phase transition. Backward transitions are ignored so that a
// late writer cannot roll a finished query back to an earlier phase.
func (t *Tracker) Set(id string, phase Phase, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.entries[id]; ok && phaseRank(phase) < phaseRank(cur.Phase) {
		return
	}
	if _, ok := t.entries[id]; !ok && len(t.entries) >= t.capacity {
		t.evictLocked()
	}
	t.entries[id] = Status{Phase: phase, Progress: progress, Message: message, Updated: t.now()}
}

// Get returns the status for id, or an unknown zero-progress status when the
// id was never seen or has been evicted.
func (t *Tracker) Get(id string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.entries[id]; ok {
		return s
	}
	return Status{Phase: PhaseUnknown, Progress: 0}
}

// Prune drops entries in a terminal phase that were last updated before the
// cutoff. Returns how many were removed.
func (t *Tracker) Prune(olderThan time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-olderThan)
	removed := 0
	for id, s := range t.entries {
		if terminal(s.Phase) && s.Updated.Before(cutoff) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports how many entries are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func terminal(p Phase) bool {
	return p == PhaseDone || p == PhaseError
}

// evictLocked frees one slot, preferring the oldest terminal entry and
// falling back to the oldest entry of any phase.
func (t *Tracker) evictLocked() {
	var victim string
	var victimAt time.Time
	victimTerminal := false

	for id, s := range t.entries {
		isTerm := terminal(s.Phase)
		if victim == "" ||
			(isTerm && !victimTerminal) ||
			(isTerm == victimTerminal && s.Updated.Before(victimAt)) {
			victim = id
			victimAt = s.Updated
			victimTerminal = isTerm
		}
	}
	if victim != "" {
		delete(t.entries, victim)
	}
}
