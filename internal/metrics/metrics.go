// Package metrics registers the service's Prometheus collectors.
// Everything is registered via promauto against the default registry and
// exposed by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Row outcomes for IngestRows. Kept as constants so the label set stays
// bounded.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

var (
	// IngestRows counts ingested CSV rows by outcome.
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emaildb_ingest_rows_total",
			Help: "CSV rows processed by the ingestion pipeline, by outcome.",
		},
		[]string{"outcome"},
	)

	// ReconcileMoved counts records migrated to the invalid home
	// (attempted migrations, matching the pipeline's own reporting).
	ReconcileMoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emaildb_reconcile_moved_total",
			Help: "Candidate emails submitted for migration to the invalid home.",
		},
	)

	// ExportRecords counts records serialized by the export pipeline.
	ExportRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emaildb_export_records_total",
			Help: "Email records written to CSV exports, by export mode.",
		},
		[]string{"mode"},
	)

	// HTTPRequests counts HTTP requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emaildb_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by method and route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emaildb_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
