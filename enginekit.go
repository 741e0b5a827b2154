// Package enginekit runs plugin-style workloads under a managed lifecycle.
//
// Example usage:
//
//	eng, err := enginekit.New(enginekit.Config{Name: "AdKats"},
//	    enginekit.WithPhases(lifecycle.Phases{Startup: connect}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := enginekit.Run(ctx, eng, 10*time.Second); err != nil {
//	    log.Fatal(err)
//	}
//
// The subpackages can be used on their own; pkg/engine wires them together.
package enginekit

import (
	"context"
	"time"

	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
)

// Engine wires the scheduler, watchdog, lifecycle controller and event bus.
type Engine = engine.Engine

// Config holds the engine settings.
type Config = engine.Config

// Option configures optional behavior of an Engine.
type Option = engine.Option

// Plugin extends the engine with host-side integrations.
type Plugin = engine.Plugin

// State is a lifecycle state.
type State = lifecycle.State

// Version is the engine version.
const Version = engine.Version

// New creates an engine. See engine.New.
func New(cfg Config, opts ...Option) (*Engine, error) {
	return engine.New(cfg, opts...)
}

// Option constructors re-exported from pkg/engine.
var (
	WithLogger       = engine.WithLogger
	WithCommander    = engine.WithCommander
	WithPhases       = engine.WithPhases
	WithEventEmitter = engine.WithEventEmitter
	WithPlugin       = engine.WithPlugin
	WithRegistry     = engine.WithRegistry
)

// Run starts eng and blocks until ctx is done, then closes it with the
// given shutdown timeout. Cancelling ctx triggers a graceful shutdown, so
// the engine itself runs detached from ctx's cancellation.
func Run(ctx context.Context, eng *Engine, shutdownTimeout time.Duration) error {
	if err := eng.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()
	return eng.Close(shutdownTimeout)
}
