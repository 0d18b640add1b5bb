package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RetrievalMetrics instruments the engine itself. All record methods are
// nil-safe so library embedders can skip instrumentation entirely.
type RetrievalMetrics struct {
	registry *prometheus.Registry
	service  string

	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	retrievedChunks      *prometheus.HistogramVec
	contextTokens        *prometheus.HistogramVec
	noContextTotal       *prometheus.CounterVec
	ownershipLeakTotal   *prometheus.CounterVec
	rerankFallbackTotal  *prometheus.CounterVec
	mmrFallbackTotal     *prometheus.CounterVec
	tenantRejectionTotal *prometheus.CounterVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total retrieval requests by operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Retrieval duration in seconds by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "retrieved_chunks",
			Help:      "Distribution of chunks surviving ownership validation per request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service"},
	)
	contextTokens := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "context_tokens",
			Help:      "Estimated token count of assembled context.",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096},
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "no_context_total",
			Help:      "Total requests resolving to the no-relevant-context sentinel.",
		},
		[]string{"service"},
	)
	ownershipLeakTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "ownership_leak_dropped_total",
			Help:      "Chunks dropped by the post-query ownership validator.",
		},
		[]string{"service"},
	)
	rerankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "reranker_fallback_total",
			Help:      "Rerank calls that fell back to the pre-rerank ordering.",
		},
		[]string{"service"},
	)
	mmrFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "diversifier_fallback_total",
			Help:      "Diversifier runs that fell back to the original ordering.",
		},
		[]string{"service"},
	)
	tenantRejectionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "engine",
			Name:      "tenant_rejection_total",
			Help:      "Requests rejected for a missing or blank tenant id.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		retrievedChunks,
		contextTokens,
		noContextTotal,
		ownershipLeakTotal,
		rerankFallbackTotal,
		mmrFallbackTotal,
		tenantRejectionTotal,
	)

	return &RetrievalMetrics{
		registry:             registry,
		service:              service,
		requestsTotal:        requestsTotal,
		requestDuration:      requestDuration,
		retrievedChunks:      retrievedChunks,
		contextTokens:        contextTokens,
		noContextTotal:       noContextTotal,
		ownershipLeakTotal:   ownershipLeakTotal,
		rerankFallbackTotal:  rerankFallbackTotal,
		mmrFallbackTotal:     mmrFallbackTotal,
		tenantRejectionTotal: tenantRejectionTotal,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) RecordRequest(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(m.service, operation, outcome).Inc()
	m.requestDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) RecordRetrievedChunks(count int) {
	if m == nil {
		return
	}
	m.retrievedChunks.WithLabelValues(m.service).Observe(float64(count))
}

func (m *RetrievalMetrics) RecordContextTokens(tokens int) {
	if m == nil {
		return
	}
	m.contextTokens.WithLabelValues(m.service).Observe(float64(tokens))
}

func (m *RetrievalMetrics) RecordNoContext() {
	if m == nil {
		return
	}
	m.noContextTotal.WithLabelValues(m.service).Inc()
}

func (m *RetrievalMetrics) RecordOwnershipLeak() {
	if m == nil {
		return
	}
	m.ownershipLeakTotal.WithLabelValues(m.service).Inc()
}

func (m *RetrievalMetrics) RecordRerankerFallback() {
	if m == nil {
		return
	}
	m.rerankFallbackTotal.WithLabelValues(m.service).Inc()
}

func (m *RetrievalMetrics) RecordDiversifierFallback() {
	if m == nil {
		return
	}
	m.mmrFallbackTotal.WithLabelValues(m.service).Inc()
}

func (m *RetrievalMetrics) RecordTenantRejection() {
	if m == nil {
		return
	}
	m.tenantRejectionTotal.WithLabelValues(m.service).Inc()
}
