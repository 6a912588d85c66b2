package reorg

import (
	"strconv"
	"time"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_rollbacks_total",
			Help: "Total number of rollbacks by chain and outcome",
		},
		[]string{"chain_id", "outcome"},
	)

	rollbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakeindex_rollback_depth_blocks",
			Help:    "Depth of rollbacks in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	rollbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakeindex_rollback_duration_seconds",
			Help:    "Time taken to delete and replay the rolled back range",
			Buckets: prometheus.DefBuckets,
		},
	)

	rollbackRowsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_rollback_rows_deleted_total",
			Help: "Rows deleted by rollbacks per table",
		},
		[]string{"table"},
	)

	rollbackLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_rollback_last_timestamp",
			Help: "Unix timestamp of the last completed rollback",
		},
	)

	chainState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_chain_sync_state",
			Help: "Current sync state per chain (1 for the active state)",
		},
		[]string{"chain_id", "state"},
	)
)

func rollbackLog(chainID, depth uint64, deleted map[string]int64, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	rollbacks.WithLabelValues(strconv.FormatUint(chainID, 10), outcome).Inc()
	if err != nil {
		return
	}

	rollbackDepth.Observe(float64(depth))
	rollbackDuration.Observe(duration.Seconds())
	rollbackLastTimestamp.Set(float64(time.Now().UTC().Unix()))
	for table, n := range deleted {
		rollbackRowsDeleted.WithLabelValues(table).Add(float64(n))
	}
}

func stateSet(chainID uint64, state indexer.SyncState) {
	id := strconv.FormatUint(chainID, 10)
	for _, s := range []indexer.SyncState{indexer.StateFollowing, indexer.StateRollingBack, indexer.StateCaughtUp} {
		v := 0.0
		if s == state {
			v = 1
		}
		chainState.WithLabelValues(id, string(s)).Set(v)
	}
}
