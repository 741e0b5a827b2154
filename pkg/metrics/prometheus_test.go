package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRecorder(t *testing.T) (*Prometheus, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus("", reg)
	if err != nil {
		t.Fatalf("NewPrometheus() error = %v", err)
	}
	return p, reg
}

func TestPrometheus_TaskCounters(t *testing.T) {
	p, _ := newTestRecorder(t)

	p.TaskSubmitted("startup")
	p.TaskSubmitted("startup")
	p.TaskDispatched("startup")
	p.TaskFinished("startup", 10*time.Millisecond, false)
	p.TaskFinished("startup", 5*time.Millisecond, true)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"submitted", p.tasksSubmitted.WithLabelValues("startup"), 2},
		{"dispatched", p.tasksDispatched.WithLabelValues("startup"), 1},
		{"ok", p.tasksFinished.WithLabelValues("startup", "ok"), 1},
		{"failed", p.tasksFinished.WithLabelValues("startup", "failed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrometheus_StateGauge(t *testing.T) {
	p, _ := newTestRecorder(t)

	p.StateChanged("Setup", "Stopped")
	p.StateChanged("Stopped", "Starting")

	if got := testutil.ToFloat64(p.state.WithLabelValues("Starting")); got != 1 {
		t.Errorf("state{Starting} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.state.WithLabelValues("Stopped")); got != 0 {
		t.Errorf("state{Stopped} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(p.stateChanges.WithLabelValues("Setup", "Stopped")); got != 1 {
		t.Errorf("transitions{Setup,Stopped} = %v, want 1", got)
	}
}

func TestPrometheus_EventsAndFailures(t *testing.T) {
	p, _ := newTestRecorder(t)

	p.EventTriggered("OnStateChanged", false)
	p.EventTriggered("OnStateChanged", true)
	p.EventTriggered("OnStateChanged", true)
	p.HandlerFailed("OnStateChanged", "audit")
	p.LoopRecovered("dispatcher")

	if got := testutil.ToFloat64(p.eventsTriggered.WithLabelValues("OnStateChanged", "true")); got != 2 {
		t.Errorf("vetoed triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.handlerFailures.WithLabelValues("OnStateChanged", "audit")); got != 1 {
		t.Errorf("handler failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.loopRecoveries.WithLabelValues("dispatcher")); got != 1 {
		t.Errorf("loop recoveries = %v, want 1", got)
	}
}

func TestPrometheus_ObserveWorkers(t *testing.T) {
	p, reg := newTestRecorder(t)

	n := 3
	if err := p.ObserveWorkers(func() int { return n }); err != nil {
		t.Fatalf("ObserveWorkers() error = %v", err)
	}

	expected := `
# HELP enginekit_watchdog_workers Workers currently registered with the watchdog
# TYPE enginekit_watchdog_workers gauge
enginekit_watchdog_workers 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "enginekit_watchdog_workers"); err != nil {
		t.Error(err)
	}
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus("dup", reg); err != nil {
		t.Fatalf("first NewPrometheus() error = %v", err)
	}
	if _, err := NewPrometheus("dup", reg); err == nil {
		t.Error("second NewPrometheus() on same registry succeeded, want error")
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(Noop); !ok {
		t.Error("OrNoop(nil) is not Noop")
	}
	p, _ := newTestRecorder(t)
	if OrNoop(p) != Recorder(p) {
		t.Error("OrNoop(p) did not return p")
	}
}
