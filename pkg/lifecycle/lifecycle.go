package lifecycle

import (
	"context"

	"github.com/bft-labs/enginekit/pkg/scheduler"
)

// State represents the lifecycle state of the engine.
type State int

const (
	StateSetup State = iota
	StateStopped
	StateStarting
	StateRunning
	StateStopping
	StateException
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateSetup:
		return "Setup"
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateException:
		return "Exception"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(previous, current State, reason string)

func (f EmitterFunc) OnStateChange(previous, current State, reason string) {
	f(previous, current, reason)
}

// PhaseFunc is the body of a lifecycle phase. It runs on a scheduler worker;
// long phases should call Kick with the ctx they were given.
type PhaseFunc func(ctx context.Context) error

// Phases holds the user-supplied phase bodies. Nil phases are no-ops.
type Phases struct {
	Setup    PhaseFunc
	Startup  PhaseFunc
	Shutdown PhaseFunc
}

// Submitter is the part of the scheduler the controller needs.
type Submitter interface {
	Submit(name string, body scheduler.Func, opts ...scheduler.TaskOption)
	Kick(ctx context.Context)
}
