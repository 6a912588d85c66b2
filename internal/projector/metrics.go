package projector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProjected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_events_projected_total",
			Help: "Projected events by contract kind, event and outcome",
		},
		[]string{"kind", "event", "outcome"},
	)

	projectionTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakeindex_event_projection_duration_seconds",
			Help:    "Time taken to project one event, contract reads included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	balanceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_balance_fallbacks_total",
			Help: "Interactions whose balance was derived from the event amount",
		},
		[]string{"kind"},
	)

	entitiesSynthesized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_entities_synthesized_total",
			Help: "Zero-state entities created for withdraw or claim events in degraded mode",
		},
		[]string{"entity"},
	)
)

func projectedLog(kind, event, outcome string, d time.Duration) {
	eventsProjected.WithLabelValues(kind, event, outcome).Inc()
	projectionTime.WithLabelValues(kind).Observe(d.Seconds())
}

func fallbackInc(kind string) {
	balanceFallbacks.WithLabelValues(kind).Inc()
}

func synthesizedInc(entity string) {
	entitiesSynthesized.WithLabelValues(entity).Inc()
}
