// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Indexer metrics
	EventsApplied     *prometheus.CounterVec
	DuplicatesSkipped prometheus.Counter
	InvalidEvents     prometheus.Counter
	BackfillChunks    prometheus.Counter
	Reconnects        prometheus.Counter
	IndexerState      *prometheus.GaugeVec
	CheckpointBlock   prometheus.Gauge

	// Query API metrics
	HTTPRequestDuration *prometheus.HistogramVec
	RankingsGenerated   *prometheus.CounterVec
	SnapshotsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tipscore"
	}

	return &Metrics{
		// Indexer metrics
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_applied_total",
			Help:      "Total number of chain events applied by kind",
		}, []string{"kind"}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of already-applied events skipped",
		}),
		InvalidEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "invalid_events_total",
			Help:      "Total number of undecodable logs skipped",
		}),
		BackfillChunks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "backfill_chunks_total",
			Help:      "Total number of backfill chunks fetched",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "reconnects_total",
			Help:      "Total number of live-stream reconnect attempts",
		}),
		IndexerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "state",
			Help:      "Current indexer state (1 for active state, 0 otherwise)",
		}, []string{"state"}),
		CheckpointBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "checkpoint_block",
			Help:      "Last fully-applied block number",
		}),

		// Query API metrics
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RankingsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rankings_generated_total",
			Help:      "Total number of ranking generations by axis",
		}, []string{"axis"}),
		SnapshotsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "snapshots_generated_total",
			Help:      "Total number of daily snapshots generated",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventApplied increments the applied counter for an event kind.
func RecordEventApplied(kind string) {
	DefaultMetrics.EventsApplied.WithLabelValues(kind).Inc()
}

// RecordDuplicateSkipped increments the duplicates skipped counter.
func RecordDuplicateSkipped() {
	DefaultMetrics.DuplicatesSkipped.Inc()
}

// RecordInvalidEvent increments the invalid events counter.
func RecordInvalidEvent() {
	DefaultMetrics.InvalidEvents.Inc()
}

// RecordBackfillChunk increments the backfill chunks counter.
func RecordBackfillChunk() {
	DefaultMetrics.BackfillChunks.Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.Reconnects.Inc()
}

// SetIndexerState marks one state active and all others inactive.
func SetIndexerState(active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		DefaultMetrics.IndexerState.WithLabelValues(s).Set(v)
	}
}

// UpdateCheckpoint updates the checkpoint block gauge.
func UpdateCheckpoint(block uint64) {
	DefaultMetrics.CheckpointBlock.Set(float64(block))
}

// RecordHTTPRequest records an API request observation.
func RecordHTTPRequest(route, method, status string, seconds float64) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(seconds)
}

// RecordRankingGenerated increments the rankings counter for an axis.
func RecordRankingGenerated(axis string) {
	DefaultMetrics.RankingsGenerated.WithLabelValues(axis).Inc()
}

// RecordSnapshotGenerated increments the snapshots counter.
func RecordSnapshotGenerated() {
	DefaultMetrics.SnapshotsGenerated.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
