// Package metrics defines the instrumentation hooks the engine components
// call and a Prometheus implementation of them.
package metrics

import "time"

// Recorder receives instrumentation events from the scheduler, the
// lifecycle controller and the event bus. Implementations must be safe
// for concurrent use and must not block.
type Recorder interface {
	// TaskSubmitted is called when a task enters the scheduler queue.
	TaskSubmitted(task string)
	// TaskDispatched is called when the dispatcher hands a task to a worker.
	TaskDispatched(task string)
	// TaskFinished is called after a task body returns or panics.
	TaskFinished(task string, elapsed time.Duration, failed bool)
	// StateChanged is called on every lifecycle transition.
	StateChanged(from, to string)
	// EventTriggered is called once per Trigger of a registered event.
	EventTriggered(event string, vetoed bool)
	// HandlerFailed is called when an event handler errors or panics.
	HandlerFailed(event, subscriber string)
	// LoopRecovered is called when a long-running loop recovers from a panic.
	LoopRecovered(loop string)
}

// Noop is a Recorder that discards everything.
type Noop struct{}

func (Noop) TaskSubmitted(string)                     {}
func (Noop) TaskDispatched(string)                    {}
func (Noop) TaskFinished(string, time.Duration, bool) {}
func (Noop) StateChanged(string, string)              {}
func (Noop) EventTriggered(string, bool)              {}
func (Noop) HandlerFailed(string, string)             {}
func (Noop) LoopRecovered(string)                     {}

// OrNoop returns r, or Noop if r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
