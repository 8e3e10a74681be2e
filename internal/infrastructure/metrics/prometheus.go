// Package metrics exposes Prometheus metrics for Curtain Lights.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Curtain Lights metric and the registry they live on.
type Manager struct {
	namespace         string
	latencyBuckets    []float64
	enabled           bool
	runtimeCollectors bool
	registry          *prometheus.Registry

	// Limiter
	limiterWait prometheus.Histogram

	// Device client
	deviceCommands       *prometheus.CounterVec
	deviceCommandLatency *prometheus.HistogramVec

	// Celebration engine
	submissions     *prometheus.CounterVec
	finished        *prometheus.CounterVec
	activeByState   *prometheus.GaugeVec
	restoreFailures prometheus.Counter

	// Trigger scheduler
	polls    *prometheus.CounterVec
	triggers *prometheus.CounterVec
	pushes   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on a private registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "curtainlights",
		latencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		enabled:        true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtimeCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.limiterWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "limiter",
		Name:      "wait_seconds",
		Help:      "Time callers spent waiting for a command token",
		Buckets:   []float64{0, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	m.deviceCommands = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "device",
		Name:      "commands_total",
		Help:      "Vendor commands by command name and final outcome",
	}, []string{"command", "outcome"})

	m.deviceCommandLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "device",
		Name:      "command_duration_seconds",
		Help:      "Vendor command latency including retries",
		Buckets:   m.latencyBuckets,
	}, []string{"command"})

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "celebration",
		Name:      "submissions_total",
		Help:      "Celebration requests by resolved tier and submit result",
	}, []string{"tier", "result"})

	m.finished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "celebration",
		Name:      "finished_total",
		Help:      "Celebrations that left the Playing state, by outcome",
	}, []string{"tier", "outcome"})

	m.activeByState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "celebration",
		Name:      "devices",
		Help:      "Devices currently in each non-idle celebration state",
	}, []string{"state"})

	m.restoreFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "celebration",
		Name:      "restore_failures_total",
		Help:      "Restores that did not complete within the restore timeout",
	})

	m.polls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "polls_total",
		Help:      "Source polls by source kind and result",
	}, []string{"source", "result"})

	m.triggers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "scheduler",
		Name:      "triggers_total",
		Help:      "Celebration requests emitted by the scheduler",
	}, []string{"source"})

	m.pushes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "push",
		Name:      "events_total",
		Help:      "Inbound push events by handling result",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route pattern and status",
	}, []string{"method", "route", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern",
		Buckets:   m.latencyBuckets,
	}, []string{"method", "route"})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLimiterWait records how long an Acquire call blocked.
func (m *Manager) ObserveLimiterWait(d time.Duration) {
	if !m.enabled {
		return
	}
	m.limiterWait.Observe(d.Seconds())
}

// RecordCommand counts a settled vendor command.
func (m *Manager) RecordCommand(command, outcome string, latency time.Duration) {
	if !m.enabled {
		return
	}
	m.deviceCommands.WithLabelValues(command, outcome).Inc()
	m.deviceCommandLatency.WithLabelValues(command).Observe(latency.Seconds())
}

// RecordSubmission counts a submitCelebration result (accepted, dropped, superseded).
func (m *Manager) RecordSubmission(tier, result string) {
	if !m.enabled {
		return
	}
	m.submissions.WithLabelValues(tier, result).Inc()
}

// RecordFinished counts a celebration leaving Playing (completed, superseded, cancelled).
func (m *Manager) RecordFinished(tier, outcome string) {
	if !m.enabled {
		return
	}
	m.finished.WithLabelValues(tier, outcome).Inc()
}

// RecordTransition moves one device from one state gauge to another.
// The idle state is not tracked.
func (m *Manager) RecordTransition(from, to string) {
	if !m.enabled || from == to {
		return
	}
	if from != "" && from != "idle" {
		m.activeByState.WithLabelValues(from).Dec()
	}
	if to != "" && to != "idle" {
		m.activeByState.WithLabelValues(to).Inc()
	}
}

// IncRestoreFailure counts a failed restore.
func (m *Manager) IncRestoreFailure() {
	if !m.enabled {
		return
	}
	m.restoreFailures.Inc()
}

// RecordPoll counts a scheduler poll (result: ok, error).
func (m *Manager) RecordPoll(source, result string) {
	if !m.enabled {
		return
	}
	m.polls.WithLabelValues(source, result).Inc()
}

// RecordTrigger counts a request the scheduler submitted.
func (m *Manager) RecordTrigger(source string) {
	if !m.enabled {
		return
	}
	m.triggers.WithLabelValues(source).Inc()
}

// RecordPush counts a push event (result: submitted, duplicate, ignored, invalid).
func (m *Manager) RecordPush(result string) {
	if !m.enabled {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a served request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Manager) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
