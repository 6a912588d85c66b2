package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chain progress metrics
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_last_processed_block",
			Help: "The last block whose events were applied",
		},
		[]string{"chain_id"},
	)

	HeadBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_head_block",
			Help: "The latest block reported by the chain RPC",
		},
		[]string{"chain_id"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_events_delivered_total",
			Help: "Total number of delivered events by chain and outcome",
		},
		[]string{"chain_id", "outcome"},
	)

	EventProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakeindex_event_processing_duration_seconds",
			Help:    "Time from dequeue to commit of one delivered event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain_id"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_chain_queue_depth",
			Help: "Number of events waiting in the chain worker queue",
		},
		[]string{"chain_id"},
	)

	ChainHalted = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_chain_halted",
			Help: "Whether the chain worker halted on a failed event (1=halted)",
		},
		[]string{"chain_id"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}

func LastProcessedBlockSet(chainID, block uint64) {
	LastProcessedBlock.WithLabelValues(chainLabel(chainID)).Set(float64(block))
}

func HeadBlockSet(chainID, block uint64) {
	HeadBlock.WithLabelValues(chainLabel(chainID)).Set(float64(block))
}

func EventDeliveredLog(chainID uint64, outcome string, duration time.Duration) {
	id := chainLabel(chainID)
	EventsDelivered.WithLabelValues(id, outcome).Inc()
	EventProcessingTime.WithLabelValues(id).Observe(duration.Seconds())
}

func QueueDepthSet(chainID uint64, depth int) {
	QueueDepth.WithLabelValues(chainLabel(chainID)).Set(float64(depth))
}

func ChainHaltedSet(chainID uint64, halted bool) {
	ChainHalted.WithLabelValues(chainLabel(chainID)).Set(boolToFloat(halted))
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	ComponentHealth.WithLabelValues(component).Set(boolToFloat(healthy))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
