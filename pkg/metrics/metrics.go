// Package metrics exposes Prometheus collectors for the agent team, the
// vision pipeline and the HTTP API.
package metrics

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pcb_agent"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	modelCalls      *prometheus.CounterVec
	modelDuration   *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	delegations     *prometheus.CounterVec
	detections      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	detectsInFlight prometheus.Gauge
}

// New creates and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.modelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model completions by agent and outcome",
		},
		[]string{"agent", "status"}, // status: success, error
	)
	m.modelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Time taken by language model completions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"agent"},
	)
	m.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by agent, tool and outcome",
		},
		[]string{"agent", "tool", "status"},
	)
	m.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Time taken by tool invocations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	m.delegations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Supervisor delegations by specialist",
		},
		[]string{"specialist"},
	)
	m.detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defects_detected_total",
			Help:      "Accepted defect detections by class",
		},
		[]string{"class"},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		},
		[]string{"method", "path", "status_code"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.detectsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "detect_requests_in_flight",
		Help:      "Detection requests currently holding a worker slot",
	})

	for _, c := range m.collectors() {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.modelCalls,
		m.modelDuration,
		m.toolCalls,
		m.toolDuration,
		m.delegations,
		m.detections,
		m.httpRequests,
		m.httpDuration,
		m.detectsInFlight,
	}
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveModelCall implements agent.Observer.
func (m *Metrics) ObserveModelCall(agent string, d time.Duration, err error) {
	m.modelCalls.WithLabelValues(agent, status(err != nil)).Inc()
	m.modelDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveToolCall implements agent.Observer.
func (m *Metrics) ObserveToolCall(agent, tool string, d time.Duration, failed bool) {
	m.toolCalls.WithLabelValues(agent, tool, status(failed)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveDelegation implements agent.Observer.
func (m *Metrics) ObserveDelegation(specialist string) {
	m.delegations.WithLabelValues(specialist).Inc()
}

// RecordDetections counts accepted detections per class.
func (m *Metrics) RecordDetections(classes []string) {
	for _, c := range classes {
		m.detections.WithLabelValues(c).Inc()
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// DetectStarted and DetectFinished track worker pool occupancy.
func (m *Metrics) DetectStarted()  { m.detectsInFlight.Inc() }
func (m *Metrics) DetectFinished() { m.detectsInFlight.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}
