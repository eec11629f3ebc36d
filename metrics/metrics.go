// Package metrics exposes Prometheus collectors for the orchestration core:
// run creation, dispatch outcomes, queue depth, active runs, terminal statuses
// and tool calls. All methods are nil-safe so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures Metrics.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "runmesh".
	Namespace string
	// Registry receives the collectors. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

// Metrics holds the collectors of one control plane.
type Metrics struct {
	registry *prometheus.Registry

	RunsCreated   prometheus.Counter
	Dispatches    *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	QueueDepth    prometheus.Gauge
	ToolCalls     *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New(optFns ...func(o *Options)) *Metrics {
	opts := Options{Namespace: "runmesh"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: opts.Registry,
		RunsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "runs_created_total",
			Help:      "Total number of runs created",
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by outcome",
		}, []string{"outcome"}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "runs_completed_total",
			Help:      "Runs that reached a terminal status",
		}, []string{"status"}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "active_runs",
			Help:      "Runs currently holding a dispatch slot",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "queue_depth",
			Help:      "Runs waiting in the prompt queue",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and success",
		}, []string{"tool", "success"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	m.registry.MustRegister(
		m.RunsCreated, m.Dispatches, m.RunsCompleted,
		m.ActiveRuns, m.QueueDepth, m.ToolCalls, m.ToolDuration,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunCreated counts a new run.
func (m *Metrics) RunCreated() {
	if m == nil {
		return
	}
	m.RunsCreated.Inc()
}

// DispatchAttempt records one dispatch tick outcome ("dispatched", "blocked", "idle").
func (m *Metrics) DispatchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(outcome).Inc()
}

// RunCompleted counts a run reaching status.
func (m *Metrics) RunCompleted(status string) {
	if m == nil {
		return
	}
	m.RunsCompleted.WithLabelValues(status).Inc()
}

// SetActive sets the active runs gauge.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(float64(n))
}

// SetQueueDepth sets the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// ObserveToolCall records one tool invocation. It satisfies agent.ToolObserver.
func (m *Metrics) ObserveToolCall(name string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name, strconv.FormatBool(success)).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(d.Seconds())
}
