package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/enginekit/pkg/control"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
	"github.com/bft-labs/enginekit/pkg/watchdog"
)

// panicOnceRecorder panics the first time a task is dispatched.
type panicOnceRecorder struct {
	metrics.Noop
	fired atomic.Bool
}

func (r *panicOnceRecorder) TaskDispatched(string) {
	if r.fired.CompareAndSwap(false, true) {
		panic("recorder exploded")
	}
}

func testConfig() Config {
	return Config{
		PollInterval: 50 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
	}
}

// startScheduler runs the dispatcher until the test ends.
func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
		if err := s.Wait(2 * time.Second); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"bounded", Config{MaxWorkers: 4}, false},
		{"negative workers", Config{MaxWorkers: -1}, true},
		{"negative poll", Config{PollInterval: -time.Second}, true},
		{"negative backoff", Config{ErrorBackoff: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.PollInterval != 30*time.Second || cfg.ErrorBackoff != 10*time.Second || cfg.MaxWorkers != 0 {
		t.Errorf("SetDefaults() = %+v", cfg)
	}
}

func TestScheduler_RunsEachTaskOnceInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Submit("task", func(ctx context.Context) (control.Result, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return control.Proceed, nil
		})
	}
	if got := s.Stats().Pending; got != 5 {
		t.Errorf("Pending before Run = %d, want 5", got)
	}

	startScheduler(t, s)
	waitFor(t, "5 completions", func() bool { return s.Stats().Completed == 5 })

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..4", order)
		}
	}
	if st := s.Stats(); st.Dispatched != 5 || st.Pending != 0 || st.Failed != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestScheduler_DistinctWorkers(t *testing.T) {
	s, _ := New(testConfig(), nil, nil)
	startScheduler(t, s)

	var mu sync.Mutex
	ids := map[string]bool{}
	for i := 0; i < 10; i++ {
		s.Submit("t", func(ctx context.Context) (control.Result, error) {
			id, ok := WorkerID(ctx)
			if !ok {
				return control.Proceed, errors.New("no worker id")
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
			return control.Proceed, nil
		})
	}

	waitFor(t, "10 completions", func() bool { return s.Stats().Completed == 10 })
	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 10 {
		t.Errorf("distinct worker ids = %d, want 10", len(ids))
	}
}

func TestScheduler_TrackedTaskHoldsEntry(t *testing.T) {
	s, _ := New(testConfig(), nil, nil)
	startScheduler(t, s)

	type seen struct {
		entry watchdog.Entry
		found bool
	}
	result := make(chan seen, 1)
	s.Submit("tracked", func(ctx context.Context) (control.Result, error) {
		id, _ := WorkerID(ctx)
		e, ok := s.Watchdog().Get(id)
		result <- seen{entry: e, found: ok}
		return control.Proceed, nil
	})

	select {
	case r := <-result:
		if !r.found {
			t.Fatal("tracked task has no watchdog entry while running")
		}
		if r.entry.TaskName != "tracked" {
			t.Errorf("entry.TaskName = %q, want tracked", r.entry.TaskName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	waitFor(t, "entry removal", func() bool { return s.Watchdog().Count() == 0 })
}

func TestScheduler_UntrackedTaskHasNoEntry(t *testing.T) {
	logger := log.NewRecordingLogger()
	s, _ := New(testConfig(), nil, logger)
	startScheduler(t, s)

	found := make(chan bool, 1)
	s.Submit("monitor", func(ctx context.Context) (control.Result, error) {
		id, _ := WorkerID(ctx)
		_, ok := s.Watchdog().Get(id)
		s.Kick(ctx)
		found <- ok
		return control.Proceed, nil
	}, WithoutLiveness())

	select {
	case ok := <-found:
		if ok {
			t.Error("untracked task has a watchdog entry")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	waitFor(t, "completion", func() bool { return s.Stats().Completed == 1 })

	warns := logger.Find(log.WarnLevel, "kick from unmonitored worker")
	if len(warns) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warns))
	}
	if task, _ := warns[0].Field("task"); task != "monitor" {
		t.Errorf("warning task field = %v, want monitor", task)
	}
}

func TestScheduler_KickRefreshesEntry(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	wd := watchdog.NewRegistry(watchdog.WithClock(clock))
	s, _ := New(testConfig(), wd, nil)
	startScheduler(t, s)

	idle := make(chan time.Duration, 1)
	s.Submit("worker", func(ctx context.Context) (control.Result, error) {
		mu.Lock()
		now = now.Add(3 * time.Second)
		mu.Unlock()

		s.Kick(ctx)

		id, _ := WorkerID(ctx)
		e, _ := wd.Get(id)
		idle <- e.LastKick.Sub(e.Registered)
		return control.Proceed, nil
	})

	select {
	case d := <-idle:
		if d != 3*time.Second {
			t.Errorf("LastKick - Registered = %v, want 3s", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestScheduler_KickOutsideWorker(t *testing.T) {
	logger := log.NewRecordingLogger()
	s, _ := New(testConfig(), nil, logger)

	ctx := log.WithScope(context.Background(), log.Scope{Component: "plugin", Operation: "poll"})
	s.Kick(ctx)

	warns := logger.Find(log.WarnLevel, "kick from unmonitored worker")
	if len(warns) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warns))
	}
	if c, _ := warns[0].Field("component"); c != "plugin" {
		t.Errorf("component = %v, want plugin", c)
	}
	if s.Watchdog().Count() != 0 {
		t.Error("Kick outside a worker created a watchdog entry")
	}
}

func TestScheduler_RunIsolated(t *testing.T) {
	tests := []struct {
		name       string
		body       Func
		want       control.Result
		wantFailed bool
	}{
		{
			name: "proceed",
			body: func(context.Context) (control.Result, error) { return control.Proceed, nil },
			want: control.Proceed,
		},
		{
			name: "halt",
			body: func(context.Context) (control.Result, error) { return control.Halt, nil },
			want: control.Halt,
		},
		{
			name:       "error is fail-open",
			body:       func(context.Context) (control.Result, error) { return control.Halt, errors.New("boom") },
			want:       control.Proceed,
			wantFailed: true,
		},
		{
			name:       "panic is fail-open",
			body:       func(context.Context) (control.Result, error) { panic("kaboom") },
			want:       control.Proceed,
			wantFailed: true,
		},
		{
			name:       "nil body",
			body:       nil,
			want:       control.Proceed,
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := log.NewRecordingLogger()
			s, _ := New(testConfig(), nil, logger)

			got := s.RunIsolated(context.Background(), "isolated", tt.body)
			if got != tt.want {
				t.Errorf("RunIsolated() = %v, want %v", got, tt.want)
			}

			failures := logger.Find(log.ErrorLevel, "task failed")
			if tt.wantFailed != (len(failures) == 1) {
				t.Errorf("failure logs = %d, wantFailed %v", len(failures), tt.wantFailed)
			}
			st := s.Stats()
			if tt.wantFailed && st.Failed != 1 {
				t.Errorf("Failed = %d, want 1", st.Failed)
			}
			if !tt.wantFailed && st.Completed != 1 {
				t.Errorf("Completed = %d, want 1", st.Completed)
			}
		})
	}
}

func TestScheduler_CallRecoversPanic(t *testing.T) {
	sentinel := errors.New("inner")
	_, err := call(context.Background(), func(context.Context) (control.Result, error) {
		panic(sentinel)
	})

	var pe *control.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a PanicError", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("PanicError does not unwrap to the panicked error")
	}
	if len(pe.Stack) == 0 {
		t.Error("PanicError has no stack")
	}
}

func TestScheduler_SubmitNilBody(t *testing.T) {
	logger := log.NewRecordingLogger()
	s, _ := New(testConfig(), nil, logger)

	s.Submit("nothing", nil)

	if s.Stats().Pending != 0 {
		t.Error("nil body was queued")
	}
	if len(logger.Find(log.WarnLevel, "rejected task without body")) != 1 {
		t.Error("expected a warning for nil body")
	}
}

func TestScheduler_LoopRecoversFromPanic(t *testing.T) {
	logger := log.NewRecordingLogger()
	rec := &panicOnceRecorder{}
	s, _ := New(testConfig(), nil, logger, WithRecorder(rec))

	var runs atomic.Int32
	s.Submit("survivor", func(context.Context) (control.Result, error) {
		runs.Add(1)
		return control.Proceed, nil
	})

	startScheduler(t, s)
	waitFor(t, "task run", func() bool { return runs.Load() == 1 })

	if len(logger.Find(log.ErrorLevel, "task scheduler loop failed")) != 1 {
		t.Error("loop failure was not logged")
	}

	// Give a buggy dispatcher a chance to run the task twice.
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("task ran %d times, want 1", runs.Load())
	}
}

func TestScheduler_WaitTimeout(t *testing.T) {
	s, _ := New(testConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	release := make(chan struct{})
	started := make(chan struct{})
	s.Submit("slow", func(context.Context) (control.Result, error) {
		close(started)
		<-release
		return control.Proceed, nil
	})
	<-started

	cancel()
	<-done

	if err := s.Wait(20 * time.Millisecond); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("Wait() error = %v, want ErrShutdownTimeout", err)
	}

	close(release)
	if err := s.Wait(2 * time.Second); err != nil {
		t.Errorf("Wait() after release error = %v", err)
	}
}

func TestScheduler_RunTwice(t *testing.T) {
	s, _ := New(testConfig(), nil, nil)
	startScheduler(t, s)
	waitFor(t, "running", func() bool { return s.running.Load() })

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestScheduler_BoundedPool(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 2
	s, _ := New(cfg, nil, nil)
	startScheduler(t, s)

	var current, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		s.Submit("pooled", func(context.Context) (control.Result, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return control.Proceed, nil
		})
	}

	waitFor(t, "two active workers", func() bool { return s.Stats().Active == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := s.Stats().Active; got != 2 {
		t.Errorf("Active = %d, want 2", got)
	}

	close(release)
	waitFor(t, "6 completions", func() bool { return s.Stats().Completed == 6 })
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestScheduler_UnboundedTaskSkipsPool(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1
	s, _ := New(cfg, nil, nil)
	startScheduler(t, s)

	release := make(chan struct{})
	defer close(release)
	s.Submit("monitor", func(ctx context.Context) (control.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return control.Proceed, nil
	}, WithoutLiveness(), Unbounded())

	var ran atomic.Bool
	s.Submit("pooled", func(context.Context) (control.Result, error) {
		ran.Store(true)
		return control.Proceed, nil
	})

	waitFor(t, "pooled task to run beside the unbounded one", ran.Load)
	waitFor(t, "only the unbounded task active", func() bool { return s.Stats().Active == 1 })
}

func TestScheduler_PollDispatchesWithoutWake(t *testing.T) {
	s, _ := New(testConfig(), nil, nil)
	startScheduler(t, s)

	s.Submit("first", func(context.Context) (control.Result, error) {
		return control.Proceed, nil
	})
	waitFor(t, "first task", func() bool { return s.Stats().Completed == 1 })
	time.Sleep(10 * time.Millisecond)

	// Queue directly so the dispatcher is not woken.
	var ran atomic.Bool
	s.mu.Lock()
	s.queue = append(s.queue, &Task{
		Name: "quiet",
		Body: func(context.Context) (control.Result, error) {
			ran.Store(true)
			return control.Proceed, nil
		},
		Submitted: time.Now(),
	})
	s.mu.Unlock()
	select {
	case <-s.wake:
	default:
	}

	start := time.Now()
	waitFor(t, "quiet task", ran.Load)
	if elapsed := time.Since(start); elapsed > 4*testConfig().PollInterval {
		t.Errorf("quiet task started after %v, want within the poll interval", elapsed)
	}
}
