package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	counterDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stakeindex_counter_drift",
			Help: "1 when the stored global counter field differs from its recomputed value",
		},
		[]string{"field"},
	)

	conservationViolations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeindex_pool_conservation_violations",
			Help: "Pools whose totals differ from the sum of their users in the last audit",
		},
	)

	auditRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_counter_audit_total",
			Help: "Counter audit runs by outcome",
		},
		[]string{"status"},
	)
)

var driftFields = []string{
	"total_pools",
	"total_users",
	"total_users_across_pools",
	"total_staked",
	"total_claimed",
	"last_updated",
}

func driftLog(fields []string) {
	for _, f := range driftFields {
		counterDrift.WithLabelValues(f).Set(0)
	}
	for _, f := range fields {
		counterDrift.WithLabelValues(f).Set(1)
	}
}

func auditFinished(err error, violations int) {
	if err != nil {
		auditRuns.WithLabelValues("error").Inc()
		return
	}
	conservationViolations.Set(float64(violations))
	auditRuns.WithLabelValues("success").Inc()
}
