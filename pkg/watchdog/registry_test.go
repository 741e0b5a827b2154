package watchdog

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a manually advanced time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_Lifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.Now))

	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}

	r.Register("w1", "setup")
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	e, ok := r.Get("w1")
	if !ok {
		t.Fatal("Get(w1) not found")
	}
	if e.TaskName != "setup" || !e.LastKick.Equal(e.Registered) {
		t.Errorf("entry = %+v", e)
	}

	clock.Advance(5 * time.Second)
	if !r.Kick("w1") {
		t.Fatal("Kick(w1) = false, want true")
	}
	e, _ = r.Get("w1")
	if got := e.LastKick.Sub(e.Registered); got != 5*time.Second {
		t.Errorf("LastKick - Registered = %v, want 5s", got)
	}

	clock.Advance(2 * time.Second)
	if got := e.Idle(clock.Now()); got != 2*time.Second {
		t.Errorf("Idle() = %v, want 2s", got)
	}

	if !r.Unregister("w1") {
		t.Error("Unregister(w1) = false, want true")
	}
	if r.Unregister("w1") {
		t.Error("second Unregister(w1) = true, want false")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_KickUnknown(t *testing.T) {
	r := NewRegistry()
	if r.Kick("missing") {
		t.Error("Kick(missing) = true, want false")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) ok = true, want false")
	}
}

func TestRegistry_RegisterTwiceKeepsOriginal(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	r := NewRegistry(WithClock(clock.Now))

	r.Register("w", "first")
	clock.Advance(time.Minute)
	r.Register("w", "second")

	e, _ := r.Get("w")
	if e.TaskName != "first" || !e.Registered.Equal(time.Unix(100, 0)) {
		t.Errorf("entry = %+v, want original registration", e)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_SnapshotOrdered(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	r := NewRegistry(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		r.Register(fmt.Sprintf("w%d", i), fmt.Sprintf("task%d", i))
		clock.Advance(time.Second)
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot()) = %d, want 3", len(snap))
	}
	for i, e := range snap {
		if e.WorkerID != fmt.Sprintf("w%d", i) {
			t.Errorf("snap[%d].WorkerID = %s, want w%d", i, e.WorkerID, i)
		}
	}

	// Snapshot entries are copies.
	snap[0].TaskName = "changed"
	if e, _ := r.Get("w0"); e.TaskName != "task0" {
		t.Errorf("registry entry mutated through snapshot: %+v", e)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("w%d", i)
			r.Register(id, "task")
			for k := 0; k < 10; k++ {
				if !r.Kick(id) {
					t.Errorf("Kick(%s) = false", id)
				}
			}
			r.Unregister(id)
		}(i)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Errorf("Count() = %d after concurrent churn, want 0", r.Count())
	}
}
