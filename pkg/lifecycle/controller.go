package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/enginekit/internal/backoff"
	"github.com/bft-labs/enginekit/pkg/control"
	"github.com/bft-labs/enginekit/pkg/host"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
	"github.com/bft-labs/enginekit/pkg/scheduler"
)

// ErrNoScheduler is returned when a controller is built without a scheduler.
var ErrNoScheduler = errors.New("lifecycle: scheduler is required")

const (
	DefaultName         = "engine"
	DefaultErrorBackoff = 10 * time.Second
)

// Config configures a Controller.
type Config struct {
	// Name identifies the engine to the host and prefixes task names.
	Name string

	// ErrorBackoff is the pause after the monitor loop itself fails.
	ErrorBackoff time.Duration

	// InitialEnabled is the desired state before the host says otherwise.
	InitialEnabled bool
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithEmitter sets the state change listener.
func WithEmitter(e EventEmitter) Option {
	return func(c *Controller) {
		c.emitter = e
	}
}

// WithCommander sets the host command sink used by RequestEnabled.
func WithCommander(cmd host.Commander) Option {
	return func(c *Controller) {
		if cmd != nil {
			c.commander = cmd
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		c.recorder = metrics.OrNoop(r)
	}
}

// Controller drives the engine through setup, startup and shutdown in
// response to the host's enable signal. The phases run as scheduler tasks;
// the controller's own monitor loop runs as an untracked task.
type Controller struct {
	cfg       Config
	sched     Submitter
	phases    Phases
	logger    log.Logger
	emitter   EventEmitter
	commander host.Commander
	recorder  metrics.Recorder

	mu          sync.Mutex
	state       State
	desired     bool
	setupIssued bool
	wake        chan struct{}
	changed     chan struct{}

	// emitMu orders listener notifications to match transition order.
	emitMu sync.Mutex
}

// NewController creates a controller in StateSetup.
func NewController(cfg Config, sched Submitter, phases Phases, logger log.Logger, opts ...Option) (*Controller, error) {
	if sched == nil {
		return nil, ErrNoScheduler
	}
	cfg.SetDefaults()
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	c := &Controller{
		cfg:       cfg,
		sched:     sched,
		phases:    phases,
		logger:    logger,
		commander: host.NoopCommander{},
		recorder:  metrics.Noop{},
		state:     StateSetup,
		desired:   cfg.InitialEnabled,
		wake:      make(chan struct{}, 1),
		changed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the engine name the controller reports to the host.
func (c *Controller) Name() string {
	return c.cfg.Name
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DesiredEnabled returns the latest enable signal.
func (c *Controller) DesiredEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Start submits the monitor loop to the scheduler as an untracked task
// that stays outside the bounded worker pool.
func (c *Controller) Start() {
	c.sched.Submit(c.taskName("monitor"), c.Run, scheduler.WithoutLiveness(), scheduler.Unbounded())
}

// NotifyEnabled records the host's enable signal and wakes the monitor.
// The latest call wins.
func (c *Controller) NotifyEnabled(enabled bool) {
	c.mu.Lock()
	prev := c.desired
	c.desired = enabled
	c.signalLocked()
	c.mu.Unlock()

	c.logger.Info("enable signal received",
		log.Bool("enabled", enabled),
		log.Bool("previous", prev),
	)
}

// RequestEnabled asks the host to enable or disable the engine. The host is
// expected to answer with NotifyEnabled. Nothing is sent when the request
// matches the current desired state.
func (c *Controller) RequestEnabled(enabled bool) {
	if c.DesiredEnabled() == enabled {
		c.logger.Debug("enable request matches desired state", log.Bool("enabled", enabled))
		return
	}

	value := "False"
	if enabled {
		value = "True"
	}
	c.logger.Info("requesting host enable state", log.Bool("enabled", enabled))
	c.commander.ExecuteCommand(host.CommandPluginEnable, c.cfg.Name, value)
}

// WaitForState blocks until the controller is in want or ctx is done.
func (c *Controller) WaitForState(ctx context.Context, want State) error {
	for {
		c.mu.Lock()
		cur := c.state
		changed := c.changed
		c.mu.Unlock()

		if cur == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Run is the monitor loop. It reacts to every enable signal and state
// change until ctx is done. It always returns control.Proceed.
func (c *Controller) Run(ctx context.Context) (control.Result, error) {
	c.logger.Info("lifecycle monitor started",
		log.String("name", c.cfg.Name),
		log.Bool("enabled", c.DesiredEnabled()),
	)

	bo := backoff.Fixed(c.cfg.ErrorBackoff)
	for {
		if err := c.step(ctx); err != nil {
			c.recorder.LoopRecovered("lifecycle")
			c.logger.Error("lifecycle monitor failed",
				log.Err(err),
				log.Duration("backoff", c.cfg.ErrorBackoff),
			)
			if bo.Sleep(ctx) != nil {
				return c.stopped()
			}
			continue
		}

		select {
		case <-ctx.Done():
			return c.stopped()
		case <-c.wake:
		}
	}
}

func (c *Controller) stopped() (control.Result, error) {
	c.logger.Info("lifecycle monitor stopped", log.String("state", c.State().String()))
	return control.Proceed, nil
}

// step evaluates the current (state, desired) pair once.
func (c *Controller) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = control.Recovered(r)
		}
	}()

	c.mu.Lock()
	state, desired, setupIssued := c.state, c.desired, c.setupIssued
	c.mu.Unlock()

	switch state {
	case StateSetup:
		if !setupIssued {
			c.sched.Submit(c.taskName("setup"), c.setupTask)
			c.mu.Lock()
			c.setupIssued = true
			c.mu.Unlock()
		}

	case StateStopped:
		if desired {
			c.transition(StateStarting, "enable requested")
			c.sched.Submit(c.taskName("startup"), c.startupTask)
		}

	case StateStarting:
		if !desired {
			c.logger.Info("shutdown requested during startup, will stop once startup completes")
		}

	case StateRunning:
		if !desired {
			c.transition(StateStopping, "disable requested")
			c.sched.Submit(c.taskName("shutdown"), c.shutdownTask)
		}

	case StateStopping:
		if desired {
			c.logger.Info("startup requested during shutdown, startup will commence after shutdown")
		}

	case StateException:
		c.logger.Error("engine is in exception state, enable signals are ignored",
			log.Bool("enabled", desired),
		)

	default:
		c.transition(StateException, fmt.Sprintf("unknown state %d", int(state)))
	}
	return nil
}

func (c *Controller) setupTask(ctx context.Context) (control.Result, error) {
	if err := c.runPhase(ctx, "setup", c.phases.Setup); err != nil {
		return control.Proceed, err
	}
	c.transition(StateStopped, "setup complete")
	return control.Proceed, nil
}

func (c *Controller) startupTask(ctx context.Context) (control.Result, error) {
	if err := c.runPhase(ctx, "startup", c.phases.Startup); err != nil {
		return control.Proceed, err
	}

	if !c.DesiredEnabled() {
		c.logger.Info("startup cancelled, disable was requested during startup")
		c.transition(StateStopping, "startup cancelled")
		c.sched.Submit(c.taskName("shutdown"), c.shutdownTask)
		return control.Proceed, nil
	}

	c.transition(StateRunning, "startup complete")
	return control.Proceed, nil
}

func (c *Controller) shutdownTask(ctx context.Context) (control.Result, error) {
	if err := c.runPhase(ctx, "shutdown", c.phases.Shutdown); err != nil {
		return control.Proceed, err
	}
	c.transition(StateStopped, "shutdown complete")
	return control.Proceed, nil
}

// runPhase runs fn and moves the controller to StateException if it
// fails or panics.
func (c *Controller) runPhase(ctx context.Context, phase string, fn PhaseFunc) (err error) {
	if fn == nil {
		return nil
	}
	ctx = log.WithScope(ctx, log.Scope{Component: c.cfg.Name, Operation: phase})

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = control.Recovered(r)
		}
		if err != nil {
			c.logger.Error("lifecycle phase failed",
				log.String("phase", phase),
				log.Err(err),
			)
			c.transition(StateException, phase+" failed: "+err.Error())
			return
		}
		c.logger.Debug("lifecycle phase complete",
			log.String("phase", phase),
			log.Duration("duration", time.Since(start)),
		)
	}()

	c.logger.Debug("lifecycle phase starting", log.String("phase", phase))
	return fn(ctx)
}

// transition moves to the next state, wakes the monitor and notifies
// listeners.
func (c *Controller) transition(next State, reason string) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	prev := c.state
	c.state = next
	close(c.changed)
	c.changed = make(chan struct{})
	c.signalLocked()
	c.mu.Unlock()

	c.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	c.recorder.StateChanged(prev.String(), next.String())
	c.emit(prev, next, reason)
}

func (c *Controller) emit(prev, next State, reason string) {
	if c.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("state change listener panicked",
				log.Any("panic", r),
				log.String("to", next.String()),
			)
		}
	}()
	c.emitter.OnStateChange(prev, next, reason)
}

func (c *Controller) signalLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) taskName(phase string) string {
	return c.cfg.Name + "-" + phase
}
