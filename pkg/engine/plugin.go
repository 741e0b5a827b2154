package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/enginekit/pkg/events"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/scheduler"
)

// Plugin extends the engine with host-side integrations such as signal
// sources or control surfaces.
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string

	// Initialize is called from Start with the engine's run context.
	// Long-running work must stop when ctx is done.
	Initialize(ctx context.Context, h Host) error

	// Shutdown is called from Close, in reverse registration order.
	Shutdown(ctx context.Context) error
}

// Host is the view of the engine available to plugins.
type Host interface {
	Name() string
	Logger() log.Logger
	Status() Status
	NotifyEnabled(enabled bool)
	RequestEnabled(enabled bool)
	Submit(name string, body scheduler.Func, opts ...scheduler.TaskOption)
	Trigger(ctx context.Context, key string, args ...any) bool
	Events() []events.EventInfo
	Gatherer() prometheus.Gatherer
}

var _ Host = (*Engine)(nil)
