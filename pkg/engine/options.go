package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/enginekit/pkg/host"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
	"github.com/bft-labs/enginekit/pkg/log"
)

// Registry is where the engine registers its metrics and where scrapers
// read them. *prometheus.Registry satisfies it.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Option configures optional behavior of an Engine.
type Option func(*options)

// options holds the optional configuration for an Engine.
type options struct {
	logger    log.Logger
	commander host.Commander
	phases    lifecycle.Phases
	emitter   lifecycle.EventEmitter
	plugins   []Plugin
	registry  Registry
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger:    log.NewNoopLogger(),
		commander: host.NoopCommander{},
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCommander sets the host command sink used for console mirroring and
// enable requests. If not provided, commands are dropped.
func WithCommander(cmd host.Commander) Option {
	return func(o *options) {
		if cmd != nil {
			o.commander = cmd
		}
	}
}

// WithPhases sets the setup, startup and shutdown bodies.
func WithPhases(phases lifecycle.Phases) Option {
	return func(o *options) {
		o.phases = phases
	}
}

// WithEventEmitter sets a listener for lifecycle transitions. It is called
// synchronously, before the state change event is triggered on the bus.
func WithEventEmitter(e lifecycle.EventEmitter) Option {
	return func(o *options) {
		o.emitter = e
	}
}

// WithPlugin registers a plugin to be initialized when the engine starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithRegistry sets the metrics registry. If not provided, a private
// registry is created so several engines can live in one process.
func WithRegistry(reg Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}
