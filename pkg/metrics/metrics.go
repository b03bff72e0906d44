package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	WorkflowActionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_action_count",
			Help: "Total workflow actions by action and outcome",
		},
		[]string{"action", "outcome"}, // outcome: success, conflict, collaborator_error, store_error
	)

	IngestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingest_count",
			Help: "Total ingested emails by result",
		},
		[]string{"result"}, // result: new, duplicate, error
	)

	AdapterCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_call_latency_ms",
			Help:    "External adapter call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"adapter", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordWorkflowAction(action, outcome string) {
	WorkflowActionCount.WithLabelValues(action, outcome).Inc()
}

func RecordIngest(result string) {
	IngestCount.WithLabelValues(result).Inc()
}

func RecordAdapterCallLatency(adapter, status string, duration time.Duration) {
	AdapterCallLatency.WithLabelValues(adapter, status).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
