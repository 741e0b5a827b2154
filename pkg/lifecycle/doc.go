// Package lifecycle provides the state machine that starts and stops the
// engine in response to the host's enable signal.
//
// The host flips the desired state with NotifyEnabled at any time. A
// monitor loop, running as an untracked scheduler task, compares the
// desired state with the current one and submits the setup, startup and
// shutdown phases as tracked tasks.
//
// # Usage
//
//	ctrl, err := lifecycle.NewController(lifecycle.Config{Name: "engine"}, sched, phases, logger,
//	    lifecycle.WithEmitter(emitter),
//	)
//	if err != nil {
//	    return err
//	}
//	ctrl.Start()
//	ctrl.NotifyEnabled(true)
//
// # State Machine
//
// Transitions:
//   - Setup -> Stopped once the setup phase completes
//   - Stopped -> Starting when enabled
//   - Starting -> Running, or Stopping if disabled while starting
//   - Running -> Stopping when disabled
//   - Stopping -> Stopped
//   - any -> Exception when a phase fails
//
// Exception is terminal. Enable signals received while Starting or
// Stopping are acknowledged and acted upon once the phase in flight ends.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
