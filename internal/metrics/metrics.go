// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	IngestTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_ingest_transitions_total",
			Help: "Pipeline status transitions, by destination status.",
		},
		[]string{"status"},
	)

	IngestFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_ingest_failures_total",
			Help: "Memories moved to failed, by pipeline step.",
		},
		[]string{"step"},
	)

	IngestSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recall_ingest_superseded_total",
			Help: "Pipeline jobs abandoned because the memory changed underneath them.",
		},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_ingest_queue_depth",
			Help: "Jobs waiting in the ingestion queue.",
		},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_query_duration_seconds",
			Help:    "Grounded query latency in seconds, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	QueryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_query_outcomes_total",
			Help: "Grounded query results, by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	QueryCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recall_query_candidates",
			Help:    "Candidates returned by the candidate source per query.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_embedding_cache_total",
			Help: "Query embedding cache lookups, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		IngestTransitionsTotal,
		IngestFailuresTotal,
		IngestSupersededTotal,
		IngestQueueDepth,
		QueryDuration,
		QueryOutcomesTotal,
		QueryCandidates,
		EmbeddingCacheTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
