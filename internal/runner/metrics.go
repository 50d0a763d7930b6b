package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/giantswarm/muster-ensemble/internal/task"
)

// Metrics exposes per-task Prometheus instrumentation on a caller-supplied
// registry; cmd/run.go builds a private registry per run and pushes it to a
// Pushgateway when --pushgateway is set.
type Metrics struct {
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	changedTasks  *prometheus.CounterVec
}

// NewMetrics builds a Metrics bundle and registers it with reg. Passing
// prometheus.NewRegistry() keeps tests hermetic; passing
// prometheus.DefaultRegisterer wires it into the process-wide /metrics
// endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "runner",
			Name:      "tasks_total",
			Help:      "Tasks executed, labeled by implementation and terminal status.",
		}, []string{"implementation", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ensemble",
			Subsystem: "runner",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock duration of a single task's gating-through-result-application pipeline.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"implementation"}),
		changedTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ensemble",
			Subsystem: "runner",
			Name:      "tasks_changed_total",
			Help:      "Tasks whose result was deduced to have changed the target's configuration.",
		}, []string{"implementation"}),
	}
	reg.MustRegister(m.tasksTotal, m.taskDuration, m.changedTasks)
	return m
}

// ObserveTask records one finished task's outcome.
func (m *Metrics) ObserveTask(t *task.Task) {
	if m == nil {
		return
	}
	impl := t.Request.ConfigSpec.Implementation
	m.tasksTotal.WithLabelValues(impl, string(t.Status())).Inc()
	m.taskDuration.WithLabelValues(impl).Observe(time.Since(t.StartTime).Seconds())
	if t.Changed() {
		m.changedTasks.WithLabelValues(impl).Inc()
	}
}
