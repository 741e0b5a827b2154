package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "enginekit"

// Prometheus is a Recorder backed by Prometheus collectors.
type Prometheus struct {
	reg prometheus.Registerer
	ns  string

	tasksSubmitted  *prometheus.CounterVec
	tasksDispatched *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	stateChanges    *prometheus.CounterVec
	state           *prometheus.GaugeVec
	eventsTriggered *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	loopRecoveries  *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
// An empty namespace uses DefaultNamespace.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	p := &Prometheus{
		reg: reg,
		ns:  namespace,
		tasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_submitted_total",
				Help:      "Tasks accepted by the scheduler",
			},
			[]string{"task"},
		),
		tasksDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_dispatched_total",
				Help:      "Tasks handed to a worker",
			},
			[]string{"task"},
		),
		tasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_finished_total",
				Help:      "Task bodies that returned, by outcome",
			},
			[]string{"task", "outcome"}, // "ok", "failed"
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall time of task bodies",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"task"},
		),
		stateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_transitions_total",
				Help:      "Lifecycle state transitions",
			},
			[]string{"from", "to"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "lifecycle_state",
				Help:      "1 for the current lifecycle state, 0 otherwise",
			},
			[]string{"state"},
		),
		eventsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_triggered_total",
				Help:      "Event triggers, by whether a subscriber vetoed the default handler",
			},
			[]string{"event", "vetoed"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_failures_total",
				Help:      "Event handlers that returned an error or panicked",
			},
			[]string{"event", "subscriber"},
		),
		loopRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_recoveries_total",
				Help:      "Panics recovered inside long-running loops",
			},
			[]string{"loop"},
		),
	}

	for _, c := range []prometheus.Collector{
		p.tasksSubmitted,
		p.tasksDispatched,
		p.tasksFinished,
		p.taskDuration,
		p.stateChanges,
		p.state,
		p.eventsTriggered,
		p.handlerFailures,
		p.loopRecoveries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return p, nil
}

// ObserveWorkers exports fn as a gauge of currently tracked workers.
func (p *Prometheus) ObserveWorkers(fn func() int) error {
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: p.ns,
			Name:      "watchdog_workers",
			Help:      "Workers currently registered with the watchdog",
		},
		func() float64 { return float64(fn()) },
	)
	if err := p.reg.Register(g); err != nil {
		return fmt.Errorf("register watchdog gauge: %w", err)
	}
	return nil
}

func (p *Prometheus) TaskSubmitted(task string) {
	p.tasksSubmitted.WithLabelValues(task).Inc()
}

func (p *Prometheus) TaskDispatched(task string) {
	p.tasksDispatched.WithLabelValues(task).Inc()
}

func (p *Prometheus) TaskFinished(task string, elapsed time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	p.tasksFinished.WithLabelValues(task, outcome).Inc()
	p.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (p *Prometheus) StateChanged(from, to string) {
	p.stateChanges.WithLabelValues(from, to).Inc()
	p.state.WithLabelValues(from).Set(0)
	p.state.WithLabelValues(to).Set(1)
}

func (p *Prometheus) EventTriggered(event string, vetoed bool) {
	p.eventsTriggered.WithLabelValues(event, fmt.Sprintf("%t", vetoed)).Inc()
}

func (p *Prometheus) HandlerFailed(event, subscriber string) {
	p.handlerFailures.WithLabelValues(event, subscriber).Inc()
}

func (p *Prometheus) LoopRecovered(loop string) {
	p.loopRecoveries.WithLabelValues(loop).Inc()
}
