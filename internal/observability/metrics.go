package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the ledger core and its ops server.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	postingsTotal      *prometheus.CounterVec
	postingDuration    *prometheus.HistogramVec
	sequenceAllocated  *prometheus.CounterVec
	sequenceCollisions *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_http_requests_total",
		Help: "HTTP requests on the ops server by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgercore_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_postings_total",
		Help: "Business events processed by event type, operation and outcome.",
	}, []string{"event", "operation", "status"})
	postingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgercore_posting_duration_seconds",
		Help:    "Duration of one posting unit of work.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event", "operation"})
	allocated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_sequence_allocations_total",
		Help: "Document numbers handed out per document type.",
	}, []string{"document_type"})
	collisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgercore_sequence_collisions_total",
		Help: "Generated numbers that were already taken and skipped.",
	}, []string{"document_type"})
	registry.MustRegister(requests, duration, postings, postingDuration, allocated, collisions)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		postingsTotal:      postings,
		postingDuration:    postingDuration,
		sequenceAllocated:  allocated,
		sequenceCollisions: collisions,
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

// Middleware records a request count and duration per chi route.
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

// ObservePosting implements posting.Observer.
func (m *Metrics) ObservePosting(event, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.postingsTotal.WithLabelValues(event, operation, status).Inc()
	m.postingDuration.WithLabelValues(event, operation).Observe(elapsed.Seconds())
}

// SequenceAllocated implements sequence.Observer.
func (m *Metrics) SequenceAllocated(documentType string) {
	if m == nil {
		return
	}
	m.sequenceAllocated.WithLabelValues(documentType).Inc()
}

// SequenceCollision implements sequence.Observer.
func (m *Metrics) SequenceCollision(documentType string) {
	if m == nil {
		return
	}
	m.sequenceCollisions.WithLabelValues(documentType).Inc()
}

// Registerer exposes the registry for extra collectors such as job metrics.
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
