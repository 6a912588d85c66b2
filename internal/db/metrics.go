package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_db_maintenance_total",
			Help: "Database maintenance runs by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakeindex_db_maintenance_duration_seconds",
			Help:    "Duration of database maintenance runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_db_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance run",
		},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_db_wal_checkpoint_total",
			Help: "WAL checkpoints by mode",
		},
		[]string{"mode"},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_db_size_bytes",
			Help: "Combined size of the database, WAL and shm files",
		},
	)
)

func maintenanceFinished(start time.Time, err error) {
	maintenanceDuration.Observe(time.Since(start).Seconds())
	maintenanceLastRun.Set(float64(time.Now().Unix()))
	if err != nil {
		maintenanceOutcomes.WithLabelValues("error").Inc()
		return
	}
	maintenanceOutcomes.WithLabelValues("success").Inc()
}

func walCheckpointInc(mode string) {
	walCheckpoints.WithLabelValues(mode).Inc()
}

func dbSizeLog(size int64) {
	dbSize.Set(float64(size))
}
