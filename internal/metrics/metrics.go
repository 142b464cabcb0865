// Package metrics exposes Prometheus instruments for ingestion and answering.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgrag"

type Metrics struct {
	registry *prometheus.Registry

	ingestTotal         *prometheus.CounterVec
	ingestChunks        prometheus.Histogram
	answerTotal         *prometheus.CounterVec
	retrievalSeconds    prometheus.Histogram
	generationSeconds   prometheus.Histogram
	generationAttempts  prometheus.Histogram
	isolationViolations *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Document ingestions by final status.",
		}, []string{"status"}),
		ingestChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_chunks",
			Help:      "Chunks published per successful ingestion.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		answerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_total",
			Help:      "Answered questions by outcome.",
		}, []string{"outcome"}),
		retrievalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Question embedding plus vector search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Language model latency including retries.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32, 64},
		}),
		generationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Model calls made per answer.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		isolationViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "isolation_violations_total",
			Help:      "Store calls refused because the organization scope did not match.",
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestTotal,
		m.ingestChunks,
		m.answerTotal,
		m.retrievalSeconds,
		m.generationSeconds,
		m.generationAttempts,
		m.isolationViolations,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IngestFinished(status string, chunks int) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		m.ingestChunks.Observe(float64(chunks))
	}
}

func (m *Metrics) AnswerFinished(outcome string) {
	if m == nil {
		return
	}
	m.answerTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveGeneration(d time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(d.Seconds())
	m.generationAttempts.Observe(float64(attempts))
}

// IsolationViolation matches isolation.ViolationObserver.
func (m *Metrics) IsolationViolation(op string) {
	if m == nil {
		return
	}
	m.isolationViolations.WithLabelValues(op).Inc()
}
