// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	LogsFetched       *prometheus.CounterVec
	ActivitiesDecoded prometheus.Counter
	ActivitiesStored  prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	FetchWindows      *prometheus.CounterVec
	IngestErrors      *prometheus.CounterVec

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	HeadBlock      prometheus.Gauge

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	BackupsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// API metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	WSClientsActive prometheus.Gauge

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "morpho_indexer"
	}

	return &Metrics{
		// Ingestion metrics
		LogsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "logs_fetched_total",
			Help:      "Total number of raw logs fetched by event kind",
		}, []string{"kind"}),
		ActivitiesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "activities_decoded_total",
			Help:      "Total number of logs decoded into activities",
		}),
		ActivitiesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "activities_stored_total",
			Help:      "Total number of new activity rows written",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of activity inserts skipped on conflict",
		}),
		FetchWindows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_windows_total",
			Help:      "Total number of log fetch windows by outcome",
		}, []string{"outcome"}),
		IngestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by stage",
		}, []string{"stage"}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ethereum RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HeadBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "head_block",
			Help:      "Most recent head block number observed",
		}),

		// Run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of ingestion runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		BackupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "backups_total",
			Help:      "Total number of JSON backup exports by status",
		}, []string{"status"}),

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
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		WSClientsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_clients_active",
			Help:      "Number of connected WebSocket clients",
		}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful ingestion run",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLogsFetched adds to the fetched log counter for one event kind.
func RecordLogsFetched(kind string, n int) {
	DefaultMetrics.LogsFetched.WithLabelValues(kind).Add(float64(n))
}

// RecordActivitiesDecoded adds to the decoded activity counter.
func RecordActivitiesDecoded(n int) {
	DefaultMetrics.ActivitiesDecoded.Add(float64(n))
}

// RecordActivitiesStored adds to the stored activity counter.
func RecordActivitiesStored(n int) {
	DefaultMetrics.ActivitiesStored.Add(float64(n))
}

// RecordDuplicatesSkipped adds to the duplicate skip counter.
func RecordDuplicatesSkipped(n int) {
	DefaultMetrics.DuplicatesSkipped.Add(float64(n))
}

// RecordFetchWindow counts one fetch window by outcome ("ok" or "narrowed").
func RecordFetchWindow(outcome string) {
	DefaultMetrics.FetchWindows.WithLabelValues(outcome).Inc()
}

// RecordIngestError counts one ingestion error for a pipeline stage.
func RecordIngestError(stage string) {
	DefaultMetrics.IngestErrors.WithLabelValues(stage).Inc()
}

// RecordRPCLatency records one RPC call latency sample.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateHeadBlock updates the observed head block gauge.
func UpdateHeadBlock(block uint64) {
	DefaultMetrics.HeadBlock.Set(float64(block))
}

// RecordRun records one completed ingestion run.
func RecordRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordBackup counts one JSON backup export.
func RecordBackup(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	DefaultMetrics.BackupsTotal.WithLabelValues(status).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetDBConnections updates the connection gauge for one database and
// connection state.
func SetDBConnections(database, state string, n int) {
	DefaultMetrics.DBConnections.WithLabelValues(database, state).Set(float64(n))
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(endpoint string, status int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(endpoint).Observe(seconds)
}

// SetWSClients updates the connected WebSocket client gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClientsActive.Set(float64(n))
}

// MarkSuccessfulRun stamps the last successful run gauge.
func MarkSuccessfulRun(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRun.Set(float64(unixSeconds))
}
