package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bft-labs/enginekit/pkg/control"
)

// ErrNilBody is reported when a task has no body to run.
var ErrNilBody = errors.New("scheduler: task body is nil")

// Func is the body of a task. Returning an error marks the run as failed;
// failures are never read as control.Halt.
type Func func(ctx context.Context) (control.Result, error)

// Task is a unit of work waiting in the queue. It is consumed once.
type Task struct {
	Name          string
	Body          Func
	TrackLiveness bool
	Unbounded     bool
	Submitted     time.Time
}

// TaskOption configures a submitted Task.
type TaskOption func(*Task)

// WithoutLiveness runs the task without a watchdog entry. Use it for
// long-lived monitors that never kick.
func WithoutLiveness() TaskOption {
	return func(t *Task) {
		t.TrackLiveness = false
	}
}

// Unbounded starts the task without taking a slot of the bounded worker
// pool, so it can never be starved by MaxWorkers.
func Unbounded() TaskOption {
	return func(t *Task) {
		t.Unbounded = true
	}
}

type workerKey struct{}

type workerInfo struct {
	id   string
	task string
}

func withWorker(ctx context.Context, id, task string) context.Context {
	return context.WithValue(ctx, workerKey{}, workerInfo{id: id, task: task})
}

// WorkerID returns the identity of the scheduler worker running ctx's task.
func WorkerID(ctx context.Context) (string, bool) {
	w, ok := ctx.Value(workerKey{}).(workerInfo)
	if !ok {
		return "", false
	}
	return w.id, true
}

// TaskName returns the name of the task that owns ctx.
func TaskName(ctx context.Context) (string, bool) {
	w, ok := ctx.Value(workerKey{}).(workerInfo)
	if !ok {
		return "", false
	}
	return w.task, true
}
