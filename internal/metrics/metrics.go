package metrics

import (
	"net/http"
	"time"
)

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixiu_score"

// Metrics groups the collectors of the scoring pipeline. A nil *Metrics is valid and
// records nothing, so components can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	rpcAttempts    *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	cacheOps       *prometheus.CounterVec
	computations   *prometheus.CounterVec
	subScoreErrors *prometheus.CounterVec
	rateDecisions  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		rpcAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "attempts_total",
			Help:      "Upstream JSON-RPC attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single upstream JSON-RPC attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		}, []string{"method"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Score cache operations by op and result.",
		}, []string{"op", "result"}),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "computations_total",
			Help:      "Score requests by source (cache, computed, error).",
		}, []string{"source"}),
		subScoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "subscore_failures_total",
			Help:      "Sub-score computations that degraded to zero.",
		}, []string{"component"}),
		rateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rpcAttempts,
		m.rpcDuration,
		m.cacheOps,
		m.computations,
		m.subScoreErrors,
		m.rateDecisions,
		m.httpRequests,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RPCAttempt(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcAttempts.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) CacheOp(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Computation(source string) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(source).Inc()
}

func (m *Metrics) SubScoreFailure(component string) {
	if m == nil {
		return
	}
	m.subScoreErrors.WithLabelValues(component).Inc()
}

func (m *Metrics) RateDecision(reason string) {
	if m == nil {
		return
	}
	m.rateDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) HTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}
