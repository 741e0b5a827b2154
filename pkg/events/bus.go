// Package events implements a named-event bus with ordered subscribers and
// veto semantics.
//
// Each event has a default handler. Triggering an event calls every
// subscriber in subscription order; if any of them returns control.Halt the
// default handler is skipped. Handler failures never count as a veto.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/enginekit/pkg/control"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
)

// DefaultSubscriber is the subscriber name used when reporting on the
// default handler.
const DefaultSubscriber = "default"

// ErrNilHandler is logged when a nil handler is subscribed.
var ErrNilHandler = errors.New("events: handler is nil")

// Handler reacts to a triggered event. Returning control.Halt from a
// subscriber vetoes the default handler.
type Handler func(ctx context.Context, args ...any) (control.Result, error)

// EventInfo describes a registered event.
type EventInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

type subscriber struct {
	name    string
	handler Handler
}

type event struct {
	key  string
	name string
	def  Handler

	// mu is held for the whole fan-out.
	mu   sync.Mutex
	subs []subscriber
}

// Option configures a Bus.
type Option func(*Bus)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Bus) {
		b.recorder = metrics.OrNoop(r)
	}
}

// Bus is a registry of events and their subscribers.
type Bus struct {
	logger   log.Logger
	recorder metrics.Recorder

	mu     sync.RWMutex
	events map[string]*event
	order  []string
}

// New creates an empty bus.
func New(logger log.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	b := &Bus{
		logger:   logger,
		recorder: metrics.Noop{},
		events:   make(map[string]*event),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register defines an event. It returns false, leaving the existing
// definition untouched, if key is already registered. A nil default
// handler does nothing when the event fires.
func (b *Bus) Register(key, name string, defaultHandler Handler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.events[key]; ok {
		b.logger.Debug("event already registered", log.String("event", key))
		return false
	}
	b.events[key] = &event{key: key, name: name, def: defaultHandler}
	b.order = append(b.order, key)

	b.logger.Debug("event registered", log.String("event", key), log.String("name", name))
	return true
}

func (b *Bus) lookup(key string) *event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.events[key]
}

// Subscribe appends a handler to the event's subscriber list. It returns
// false if the event is unknown, the subscriber name is taken, or h is nil.
// Subscribe must not be called from a handler of the same event.
func (b *Bus) Subscribe(key, name string, h Handler) bool {
	ev := b.lookup(key)
	if ev == nil {
		b.logger.Warn("subscribe to unknown event",
			log.String("event", key),
			log.String("subscriber", name),
		)
		return false
	}
	if h == nil {
		b.logger.Warn("subscribe rejected",
			log.String("event", key),
			log.String("subscriber", name),
			log.Err(ErrNilHandler),
		)
		return false
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	for _, s := range ev.subs {
		if s.name == name {
			return false
		}
	}
	ev.subs = append(ev.subs, subscriber{name: name, handler: h})
	return true
}

// Unsubscribe removes a subscriber and reports whether it was present.
func (b *Bus) Unsubscribe(key, name string) bool {
	ev := b.lookup(key)
	if ev == nil {
		return false
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	for i, s := range ev.subs {
		if s.name == name {
			ev.subs = append(ev.subs[:i:i], ev.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribers returns the subscriber names of an event in call order.
func (b *Bus) Subscribers(key string) []string {
	ev := b.lookup(key)
	if ev == nil {
		return nil
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	out := make([]string, len(ev.subs))
	for i, s := range ev.subs {
		out[i] = s.name
	}
	return out
}

// Events lists registered events in registration order.
func (b *Bus) Events() []EventInfo {
	b.mu.RLock()
	evs := make([]*event, 0, len(b.order))
	for _, key := range b.order {
		evs = append(evs, b.events[key])
	}
	b.mu.RUnlock()

	out := make([]EventInfo, 0, len(evs))
	for _, ev := range evs {
		ev.mu.Lock()
		n := len(ev.subs)
		ev.mu.Unlock()
		out = append(out, EventInfo{Key: ev.key, Name: ev.name, Subscribers: n})
	}
	return out
}

// Trigger fires an event. Every subscriber runs in order; then, unless one
// of them returned control.Halt, the default handler runs. Trigger reports
// whether the default handler ran. Unknown events log a warning and
// return false.
//
// The event's subscriber lock is held for the whole fan-out, so handlers
// must not Subscribe to or Unsubscribe from the event they are handling.
func (b *Bus) Trigger(ctx context.Context, key string, args ...any) bool {
	logger := log.FromContext(ctx, b.logger)

	ev := b.lookup(key)
	if ev == nil {
		logger.Warn("trigger of unknown event", log.String("event", key))
		return false
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()

	vetoed := false
	for _, s := range ev.subs {
		if b.invoke(ctx, logger, ev, s.name, s.handler, args) == control.Halt {
			vetoed = true
		}
	}
	b.recorder.EventTriggered(key, vetoed)

	if vetoed {
		logger.Debug("default event handler vetoed", log.String("event", key))
		return false
	}
	if ev.def != nil {
		b.invoke(ctx, logger, ev, DefaultSubscriber, ev.def, args)
	}
	return true
}

// invoke runs one handler, timing it and containing failures. A failed
// handler yields control.Proceed.
func (b *Bus) invoke(ctx context.Context, logger log.Logger, ev *event, name string, h Handler, args []any) control.Result {
	start := time.Now()
	res, err := call(ctx, h, args)
	elapsed := time.Since(start)

	if err != nil {
		b.recorder.HandlerFailed(ev.key, name)
		fields := []log.Field{
			log.String("event", ev.key),
			log.String("subscriber", name),
			log.Duration("duration", elapsed),
			log.Err(err),
		}
		var pe *control.PanicError
		if errors.As(err, &pe) {
			fields = append(fields, log.String("stack", string(pe.Stack)))
		}
		logger.Error("event handler failed", fields...)
		return control.Proceed
	}

	logger.Debug("event handler finished",
		log.String("event", ev.key),
		log.String("subscriber", name),
		log.String("result", res.String()),
		log.Duration("duration", elapsed),
	)
	return res
}

func call(ctx context.Context, h Handler, args []any) (res control.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = control.Recovered(r)
		}
	}()
	return h(ctx, args...)
}
