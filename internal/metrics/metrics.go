// Package metrics registers the Prometheus gauges and counters with the
// default registry (no HTTP endpoint serves them), grounded on the teacher's
// internal/metrics, internal/reorg, and internal/fetcher/store metric
// registries, consolidated into one package for this module's narrower
// component set.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dripfeed_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"error_type"},
	)

	LastIndexedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dripfeed_last_indexed_block",
			Help: "The last block number whose fetch window was committed",
		},
	)

	SafeHeadBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dripfeed_safe_head_block",
			Help: "The most recently observed confirmations-adjusted safe head",
		},
	)

	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dripfeed_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
	)

	LogsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dripfeed_logs_indexed_total",
			Help: "Total number of logs decoded and queued",
		},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_events_dispatched_total",
			Help: "Total number of queued events dispatched by outcome",
		},
		[]string{"outcome"},
	)

	FetchWindowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dripfeed_fetch_window_duration_seconds",
			Help:    "Time taken to fetch, decode, and persist one window",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexingRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dripfeed_indexing_rate_blocks_per_second",
			Help: "Current indexing rate in blocks per second",
		},
	)

	ReorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dripfeed_reorgs_detected_total",
			Help: "Total number of chain reorganizations detected",
		},
	)

	ReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dripfeed_reorg_depth_blocks",
			Help:    "Depth of detected reorganizations in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	RetentionHashesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dripfeed_retention_hashes_pruned_total",
			Help: "Total number of block hash records pruned by the reorg window",
		},
	)

	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dripfeed_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dripfeed_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dripfeed_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dripfeed_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func DBQueryInc(operation string) {
	dbQueries.WithLabelValues(operation).Inc()
}

func DBQueryDuration(operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(operation).Observe(duration.Seconds())
}

func DBErrorsInc(errorType string) {
	dbErrors.WithLabelValues(errorType).Inc()
}

func ReorgDetectedLog(depth, fromBlock uint64) {
	ReorgsDetected.Inc()
	ReorgDepth.Observe(float64(depth))
}

func ComponentHealthSet(component string, healthy bool) {
	v := float64(1)
	if !healthy {
		v = 0
	}
	ComponentHealth.WithLabelValues(component).Set(v)
}

// UpdateSystemMetrics refreshes uptime, goroutine count, and memory stats.
// Called periodically by the Progress Monitor.
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
