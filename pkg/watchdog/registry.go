// Package watchdog tracks the liveness of running workers.
//
// A Registry maps a worker identity to the time it last reported progress
// ("kicked"). It is bookkeeping only: it never expires entries, raises
// alerts, or acts on stale workers. Callers that want a policy can read
// Snapshot and decide for themselves.
package watchdog

import (
	"sort"
	"sync"
	"time"
)

// Entry is the liveness record of one tracked worker.
type Entry struct {
	WorkerID   string    `json:"worker_id"`
	TaskName   string    `json:"task"`
	Registered time.Time `json:"registered"`
	LastKick   time.Time `json:"last_kick"`
}

// Idle returns how long ago the worker last kicked, relative to now.
func (e Entry) Idle(now time.Time) time.Duration {
	return now.Sub(e.LastKick)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry is a concurrency-safe map of worker ID to Entry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an entry for workerID. Registering an ID that is already
// present leaves the existing entry untouched.
func (r *Registry) Register(workerID, taskName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[workerID]; ok {
		return
	}
	now := r.now()
	r.entries[workerID] = &Entry{
		WorkerID:   workerID,
		TaskName:   taskName,
		Registered: now,
		LastKick:   now,
	}
}

// Unregister removes the entry for workerID and reports whether it existed.
func (r *Registry) Unregister(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[workerID]; !ok {
		return false
	}
	delete(r.entries, workerID)
	return true
}

// Kick refreshes the LastKick time of workerID. Returns false if the worker
// is not registered.
func (r *Registry) Kick(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workerID]
	if !ok {
		return false
	}
	e.LastKick = r.now()
	return true
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Get returns a copy of the entry for workerID.
func (r *Registry) Get(workerID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[workerID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns copies of all entries ordered by registration time.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Registered.Equal(out[j].Registered) {
			return out[i].WorkerID < out[j].WorkerID
		}
		return out[i].Registered.Before(out[j].Registered)
	})
	return out
}
