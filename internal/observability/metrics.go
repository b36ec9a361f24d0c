// Package observability owns the Prometheus registry and the collectors
// shared by the HTTP server and the access pipeline.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the portal's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	scoring         *prometheus.CounterVec
	scoringDuration prometheus.Histogram
	auditFallback   *prometheus.CounterVec
}

// NewMetrics builds a registry with the process collectors and every portal
// metric pre-registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_access_decisions_total",
		Help: "Access decisions by action, decision and cause.",
	}, []string{"action", "decision", "cause"})
	scoring := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_risk_scoring_total",
		Help: "Risk oracle calls by result (normal, anomaly, unavailable).",
	}, []string{"result"})
	scoringDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_risk_scoring_duration_seconds",
		Help:    "Latency of risk oracle calls.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
	})
	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_audit_fallback_total",
		Help: "Audit writes that only reached the fallback log.",
	}, []string{"action"})
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, decisions, scoring, scoringDuration, fallback,
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisions:       decisions,
		scoring:         scoring,
		scoringDuration: scoringDuration,
		auditFallback:   fallback,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts one finished access attempt.
func (m *Metrics) ObserveDecision(action, decision, cause string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, decision, cause).Inc()
}

// ObserveScoring records one oracle call.
func (m *Metrics) ObserveScoring(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scoring.WithLabelValues(result).Inc()
	m.scoringDuration.Observe(elapsed.Seconds())
}

// AuditFallback counts an audit write that missed the database.
func (m *Metrics) AuditFallback(action string) {
	if m == nil {
		return
	}
	m.auditFallback.WithLabelValues(action).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
