package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/enginekit/pkg/control"
	"github.com/bft-labs/enginekit/pkg/events"
	"github.com/bft-labs/enginekit/pkg/host"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
	"github.com/bft-labs/enginekit/pkg/scheduler"
	"github.com/bft-labs/enginekit/pkg/watchdog"
)

// EventStateChanged is triggered on every lifecycle transition with a
// single StateChange argument. Its default handler announces the new state
// on the host console; subscribers can veto that announcement.
const EventStateChanged = "OnStateChanged"

// StateChange is the argument of EventStateChanged.
type StateChange struct {
	Previous lifecycle.State
	Current  lifecycle.State
	Reason   string
}

// Status is a snapshot of the engine.
type Status struct {
	Name      string             `json:"name"`
	State     lifecycle.State    `json:"state"`
	Desired   bool               `json:"desired_enabled"`
	Scheduler scheduler.Stats    `json:"scheduler"`
	Watchdog  []watchdog.Entry   `json:"watchdog"`
	Events    []events.EventInfo `json:"events"`
}

// Engine wires the scheduler, watchdog, lifecycle controller and event bus
// together. Use New() to create an instance, then Start() to run it.
type Engine struct {
	config    Config
	opts      options
	logger    log.Logger
	commander host.Commander
	registry  Registry

	watchdog  *watchdog.Registry
	scheduler *scheduler.Scheduler
	lifecycle *lifecycle.Controller
	bus       *events.Bus

	plugins []Plugin

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine with the given configuration.
// The engine is created in lifecycle.StateSetup; call Start() to run it.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Engine, error) {
	// Set defaults
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Validate module version compatibility
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	// Apply options
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	logger := o.logger
	if cfg.ConsoleLevel != "" {
		level, _ := log.ParseLevel(cfg.ConsoleLevel)
		logger = log.Multi(logger, log.NewCommandAdapter(o.commander, cfg.Name, level))
	}

	recorder, err := metrics.NewPrometheus(metrics.DefaultNamespace, o.registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	wd := watchdog.NewRegistry()
	if err := recorder.ObserveWorkers(wd.Count); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		PollInterval: cfg.PollInterval,
		ErrorBackoff: cfg.LoopBackoff,
		MaxWorkers:   cfg.MaxWorkers,
	}, wd, logger, scheduler.WithRecorder(recorder))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	e := &Engine{
		config:    cfg,
		opts:      o,
		logger:    logger,
		commander: o.commander,
		registry:  o.registry,
		watchdog:  wd,
		scheduler: sched,
		bus:       events.New(logger, events.WithRecorder(recorder)),
		plugins:   o.plugins,
	}
	e.bus.Register(EventStateChanged, "State Changed", e.announceState)

	ctrl, err := lifecycle.NewController(lifecycle.Config{
		Name:           cfg.Name,
		ErrorBackoff:   cfg.LoopBackoff,
		InitialEnabled: cfg.InitialEnabled,
	}, sched, o.phases, logger,
		lifecycle.WithEmitter(lifecycle.EmitterFunc(e.onStateChange)),
		lifecycle.WithCommander(o.commander),
		lifecycle.WithRecorder(recorder),
	)
	if err != nil {
		return nil, err
	}
	e.lifecycle = ctrl

	return e, nil
}

// Start runs the dispatcher and the lifecycle monitor in the background,
// then initializes plugins in registration order. Returns immediately.
// The provided context bounds the lifetime of everything started here.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.scheduler.Run(runCtx); err != nil {
			e.logger.Error("task scheduler exited", log.Err(err))
		}
	}()
	e.lifecycle.Start()

	for i, p := range e.plugins {
		if err := p.Initialize(runCtx, e); err != nil {
			e.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			e.shutdownPlugins(context.Background(), e.plugins[:i])
			cancel()
			<-done
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		e.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	e.running = true
	e.cancel = cancel
	e.done = done

	e.logger.Info("engine started",
		log.String("name", e.config.Name),
		log.Int("plugins", len(e.plugins)),
	)
	return nil
}

// Close shuts the engine down. If the lifecycle is active it is disabled
// and given until the timeout to reach Stopped. Plugins are then shut down
// in reverse order, the loops are cancelled and in-flight workers are
// awaited. Returns ErrShutdownTimeout if workers outlive the timeout.
func (e *Engine) Close(timeout time.Duration) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	ctx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()

	switch e.lifecycle.State() {
	case lifecycle.StateStarting, lifecycle.StateRunning, lifecycle.StateStopping:
		e.lifecycle.NotifyEnabled(false)
		if err := e.lifecycle.WaitForState(ctx, lifecycle.StateStopped); err != nil {
			e.logger.Warn("engine did not stop before timeout",
				log.String("state", e.lifecycle.State().String()),
				log.Err(err))
		}
	}

	e.shutdownPlugins(ctx, e.plugins)

	cancel()
	<-done

	remaining := time.Until(deadline(ctx))
	if err := e.scheduler.Wait(remaining); err != nil {
		e.logger.Warn("shutdown timeout, forcing exit",
			log.Duration("timeout", timeout),
			log.Int("active", e.scheduler.Stats().Active))
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, err)
	}

	e.logger.Info("engine closed", log.String("state", e.lifecycle.State().String()))
	return nil
}

func deadline(ctx context.Context) time.Time {
	d, ok := ctx.Deadline()
	if !ok {
		return time.Now()
	}
	return d
}

// shutdownPlugins shuts plugins down in reverse order.
func (e *Engine) shutdownPlugins(ctx context.Context, plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			e.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			e.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
}

// onStateChange forwards a lifecycle transition to the configured emitter
// and to the event bus.
func (e *Engine) onStateChange(previous, current lifecycle.State, reason string) {
	if e.opts.emitter != nil {
		e.opts.emitter.OnStateChange(previous, current, reason)
	}

	ctx := log.WithScope(context.Background(), log.Scope{Component: e.config.Name, Operation: "state-change"})
	e.bus.Trigger(ctx, EventStateChanged, StateChange{Previous: previous, Current: current, Reason: reason})
}

// announceState is the default handler of EventStateChanged.
func (e *Engine) announceState(_ context.Context, args ...any) (control.Result, error) {
	if len(args) != 1 {
		return control.Proceed, fmt.Errorf("state change: want 1 argument, got %d", len(args))
	}
	change, ok := args[0].(StateChange)
	if !ok {
		return control.Proceed, fmt.Errorf("state change: unexpected argument %T", args[0])
	}
	e.commander.ExecuteCommand(host.CommandConsoleWrite, e.config.Name,
		fmt.Sprintf("%s is now %s (%s)", e.config.Name, change.Current, change.Reason))
	return control.Proceed, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.config.Name
}

// Logger returns the engine logger, including console mirroring if enabled.
func (e *Engine) Logger() log.Logger {
	return e.logger
}

// Gatherer returns the registry holding the engine metrics.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.registry
}

// State returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (e *Engine) State() lifecycle.State {
	return e.lifecycle.State()
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	return Status{
		Name:      e.config.Name,
		State:     e.lifecycle.State(),
		Desired:   e.lifecycle.DesiredEnabled(),
		Scheduler: e.scheduler.Stats(),
		Watchdog:  e.watchdog.Snapshot(),
		Events:    e.bus.Events(),
	}
}

// WaitForState blocks until the lifecycle reaches want or ctx is done.
func (e *Engine) WaitForState(ctx context.Context, want lifecycle.State) error {
	return e.lifecycle.WaitForState(ctx, want)
}

// NotifyEnabled passes the host's enable signal to the lifecycle controller.
func (e *Engine) NotifyEnabled(enabled bool) {
	e.lifecycle.NotifyEnabled(enabled)
}

// RequestEnabled asks the host to enable or disable the engine.
func (e *Engine) RequestEnabled(enabled bool) {
	e.lifecycle.RequestEnabled(enabled)
}

// Submit queues a task on the scheduler.
func (e *Engine) Submit(name string, body scheduler.Func, opts ...scheduler.TaskOption) {
	e.scheduler.Submit(name, body, opts...)
}

// Kick refreshes the liveness of the worker running ctx.
func (e *Engine) Kick(ctx context.Context) {
	e.scheduler.Kick(ctx)
}

// RunIsolated runs body in the calling goroutine with failures contained.
func (e *Engine) RunIsolated(ctx context.Context, name string, body scheduler.Func) control.Result {
	return e.scheduler.RunIsolated(ctx, name, body)
}

// Register defines an event on the bus.
func (e *Engine) Register(key, name string, defaultHandler events.Handler) bool {
	return e.bus.Register(key, name, defaultHandler)
}

// Subscribe adds a subscriber to an event.
func (e *Engine) Subscribe(key, subscriber string, h events.Handler) bool {
	return e.bus.Subscribe(key, subscriber, h)
}

// Unsubscribe removes a subscriber from an event.
func (e *Engine) Unsubscribe(key, subscriber string) bool {
	return e.bus.Unsubscribe(key, subscriber)
}

// Trigger fires an event and reports whether its default handler ran.
func (e *Engine) Trigger(ctx context.Context, key string, args ...any) bool {
	return e.bus.Trigger(ctx, key, args...)
}

// Events lists the registered events.
func (e *Engine) Events() []events.EventInfo {
	return e.bus.Events()
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"log":       {log.Version, log.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"scheduler": {scheduler.Version, scheduler.MinCompatibleVersion},
		"watchdog":  {watchdog.Version, watchdog.MinCompatibleVersion},
		"events":    {events.Version, events.MinCompatibleVersion},
		"metrics":   {metrics.Version, metrics.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible checks if version >= minVersion using semantic versioning.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
