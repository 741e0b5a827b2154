// Package scheduler runs submitted tasks on isolated workers.
//
// Tasks are queued with Submit and started by the dispatcher loop (Run) in
// submission order, each on its own goroutine. A tracked task holds a
// watchdog entry for as long as its body runs and can refresh it with Kick.
// Failures of a body, returned or panicked, are logged and contained.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/enginekit/internal/backoff"
	"github.com/bft-labs/enginekit/pkg/control"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
	"github.com/bft-labs/enginekit/pkg/watchdog"
)

var (
	// ErrShutdownTimeout is returned by Wait when workers outlive the timeout.
	ErrShutdownTimeout = errors.New("scheduler: shutdown timeout exceeded")

	// ErrAlreadyRunning is returned when Run is called on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultErrorBackoff = 10 * time.Second
)

// Config holds the dispatcher settings.
type Config struct {
	// PollInterval bounds how long the dispatcher sleeps without a wake signal.
	PollInterval time.Duration

	// ErrorBackoff is the pause after the dispatcher loop itself fails.
	ErrorBackoff time.Duration

	// MaxWorkers caps concurrently running bodies. Zero means unbounded.
	MaxWorkers int
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("poll interval must be positive"))
	}
	if c.ErrorBackoff <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("error backoff must be positive"))
	}
	if c.MaxWorkers < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("max workers must not be negative"))
	}
	return nil
}

// Stats is a point-in-time view of the scheduler counters.
type Stats struct {
	Pending    int    `json:"pending"`
	Active     int    `json:"active"`
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	Tracked    int    `json:"tracked"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = metrics.OrNoop(r)
	}
}

// Scheduler queues tasks and dispatches them to worker goroutines.
type Scheduler struct {
	cfg      Config
	logger   log.Logger
	watchdog *watchdog.Registry
	recorder metrics.Recorder
	sem      *semaphore.Weighted

	mu    sync.Mutex
	queue []*Task
	wake  chan struct{}

	// batch is owned by the dispatcher goroutine.
	batch     []*Task
	batchSize atomic.Int64

	wg         sync.WaitGroup
	running    atomic.Bool
	active     atomic.Int64
	dispatched atomic.Uint64
	completed  atomic.Uint64
	failed     atomic.Uint64
}

// New creates a scheduler. A nil registry gets a private one; a nil logger
// discards output.
func New(cfg Config, wd *watchdog.Registry, logger log.Logger, opts ...Option) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if wd == nil {
		wd = watchdog.NewRegistry()
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		watchdog: wd,
		recorder: metrics.Noop{},
		wake:     make(chan struct{}, 1),
	}
	if cfg.MaxWorkers > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxWorkers))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Watchdog returns the registry the scheduler registers workers with.
func (s *Scheduler) Watchdog() *watchdog.Registry {
	return s.watchdog
}

// Submit queues a task and wakes the dispatcher. It never blocks.
func (s *Scheduler) Submit(name string, body Func, opts ...TaskOption) {
	if body == nil {
		s.logger.Warn("rejected task without body", log.String("task", name))
		return
	}

	t := &Task{
		Name:          name,
		Body:          body,
		TrackLiveness: true,
		Submitted:     time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	s.recorder.TaskSubmitted(name)
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RunIsolated runs body in the calling goroutine. A returned error or a
// panic is logged and yields control.Proceed; otherwise the body's result
// is returned.
func (s *Scheduler) RunIsolated(ctx context.Context, name string, body Func) control.Result {
	start := time.Now()
	res, err := call(ctx, body)
	elapsed := time.Since(start)

	if err != nil {
		s.failed.Add(1)
		s.recorder.TaskFinished(name, elapsed, true)

		worker, ok := WorkerID(ctx)
		if !ok {
			worker = "-"
		}
		fields := []log.Field{
			log.String("task", name),
			log.String("worker", worker),
			log.Err(err),
		}
		var pe *control.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, log.String("stack", string(pe.Stack)))
		}
		log.FromContext(ctx, s.logger).Error("task failed", fields...)
		return control.Proceed
	}

	s.completed.Add(1)
	s.recorder.TaskFinished(name, elapsed, false)
	return res
}

func call(ctx context.Context, body Func) (res control.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = control.Recovered(r)
		}
	}()
	if body == nil {
		return control.Proceed, ErrNilBody
	}
	return body(ctx)
}

// Kick refreshes the watchdog entry of the worker running ctx. Kicking
// from a context without a live entry only logs a warning.
func (s *Scheduler) Kick(ctx context.Context) {
	id, ok := WorkerID(ctx)
	if ok && s.watchdog.Kick(id) {
		return
	}

	fields := []log.Field{}
	if ok {
		fields = append(fields, log.String("worker", id))
	}
	if task, found := TaskName(ctx); found {
		fields = append(fields, log.String("task", task))
	}
	log.FromContext(ctx, s.logger).Warn("kick from unmonitored worker", fields...)
}

// Run is the dispatcher loop. It blocks until ctx is done. A failing
// iteration is logged and retried after ErrorBackoff. Call Wait after Run
// returns to let in-flight workers finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("task scheduler started",
		log.Duration("poll_interval", s.cfg.PollInterval),
		log.Int("max_workers", s.cfg.MaxWorkers),
	)

	bo := backoff.Fixed(s.cfg.ErrorBackoff)
	for {
		err := s.cycle(ctx)
		if ctx.Err() != nil {
			s.logger.Info("task scheduler stopped", log.Int("dropped", s.Stats().Pending))
			return nil
		}
		if err != nil {
			s.recorder.LoopRecovered("scheduler")
			s.logger.Error("task scheduler loop failed",
				log.Err(err),
				log.Duration("backoff", s.cfg.ErrorBackoff),
			)
			if bo.Sleep(ctx) != nil {
				s.logger.Info("task scheduler stopped", log.Int("dropped", s.Stats().Pending))
				return nil
			}
		}
	}
}

// cycle drains the queue, dispatches every task in order, then waits for
// the next wake signal or the poll interval.
func (s *Scheduler) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = control.Recovered(r)
		}
	}()

	s.mu.Lock()
	s.batch = append(s.batch, s.queue...)
	s.queue = nil
	s.mu.Unlock()
	s.batchSize.Store(int64(len(s.batch)))

	for len(s.batch) > 0 {
		if err := s.dispatch(ctx, s.batch[0]); err != nil {
			return err
		}
		s.batch[0] = nil
		s.batch = s.batch[1:]
		s.batchSize.Add(-1)
	}
	s.batch = nil

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.wake:
	case <-timer.C:
	}
	return nil
}

// dispatch starts one worker for t and returns once the worker reports
// it has started. The task stays queued if dispatch fails before that.
func (s *Scheduler) dispatch(ctx context.Context, t *Task) error {
	s.recorder.TaskDispatched(t.Name)
	if s.pooled(t) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	id := uuid.NewString()
	started := make(chan struct{})

	s.wg.Add(1)
	s.active.Add(1)
	s.dispatched.Add(1)
	go s.work(ctx, t, id, started)
	<-started

	s.logger.Debug("task dispatched",
		log.String("task", t.Name),
		log.String("worker", id),
		log.Bool("tracked", t.TrackLiveness),
		log.Duration("queued", time.Since(t.Submitted)),
	)
	return nil
}

// pooled reports whether t takes a slot of the bounded worker pool.
func (s *Scheduler) pooled(t *Task) bool {
	return s.sem != nil && !t.Unbounded
}

func (s *Scheduler) work(ctx context.Context, t *Task, id string, started chan<- struct{}) {
	defer s.wg.Done()
	defer s.active.Add(-1)
	if s.pooled(t) {
		defer s.sem.Release(1)
	}

	if t.TrackLiveness {
		s.watchdog.Register(id, t.Name)
		defer s.watchdog.Unregister(id)
	}
	close(started)

	s.RunIsolated(withWorker(ctx, id, t.Name), t.Name, t.Body)
}

// Wait blocks until every dispatched worker has returned or the timeout
// expires.
func (s *Scheduler) Wait(timeout time.Duration) error {
	if s.active.Load() == 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending := len(s.queue)
	s.mu.Unlock()

	return Stats{
		Pending:    pending + int(s.batchSize.Load()),
		Active:     int(s.active.Load()),
		Dispatched: s.dispatched.Load(),
		Completed:  s.completed.Load(),
		Failed:     s.failed.Load(),
		Tracked:    s.watchdog.Count(),
	}
}
