package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_rpc_errors_total",
			Help: "Total number of RPC errors by method and type",
		},
		[]string{"method", "error_type"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakeindex_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_rpc_retries_total",
			Help: "Retried contract reads by operation",
		},
		[]string{"operation"},
	)

	balanceReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_balance_reads_total",
			Help: "Ground-truth contract reads by function and outcome",
		},
		[]string{"function", "outcome"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeindex_read_cache_lookups_total",
			Help: "Contract read cache lookups by result",
		},
		[]string{"result"},
	)
)

func RPCMethodInc(method string) {
	RPCRequests.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, duration time.Duration) {
	RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RPCMethodError(method, errorType string) {
	RPCErrors.WithLabelValues(method, errorType).Inc()
}

func rpcRetryInc(operation string) {
	rpcRetries.WithLabelValues(operation).Inc()
}

func balanceReadInc(function, outcome string) {
	balanceReads.WithLabelValues(function, outcome).Inc()
}

func cacheLookupInc(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}
