// Package observability provides metrics for devsync runs
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage status label values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// Registry holds every devsync metric. It is what gets pushed at the end of a run.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	// ClientsFetched is the number of clients the broker reported in the last run
	ClientsFetched = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "devsync_clients_fetched",
			Help: "Number of clients returned by the broker in the last run",
		},
	)

	// StatementsRendered is the number of statements rendered in the last run
	StatementsRendered = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "devsync_statements_rendered",
			Help: "Number of SQL statements rendered in the last run",
		},
	)

	// RowsAffected is the number of rows changed by the last committed batch
	RowsAffected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "devsync_rows_affected",
			Help: "Rows affected by the last committed statement batch",
		},
	)

	// CacheKeysDeleted counts cache keys removed by eviction
	CacheKeysDeleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsync_cache_keys_deleted_total",
			Help: "Total number of cache keys deleted",
		},
		[]string{"db", "prefix"},
	)

	// StageRunsTotal counts pipeline stage outcomes
	StageRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsync_stage_runs_total",
			Help: "Total number of pipeline stage runs",
		},
		[]string{"stage", "status"}, // status: success, failed, skipped
	)

	// StageDuration measures pipeline stage duration in seconds
	StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devsync_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"stage", "status"},
	)
)

// RecordStage records the outcome of a pipeline stage
func RecordStage(stage, status string, duration float64) {
	StageRunsTotal.WithLabelValues(stage, status).Inc()

	if status != StatusSkipped {
		StageDuration.WithLabelValues(stage, status).Observe(duration)
	}
}
