package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_rpc_requests_total",
			Help: "Total number of RPC requests by method",
		},
		[]string{"method"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_rpc_errors_total",
			Help: "Total number of RPC errors by method and type",
		},
		[]string{"method", "error_type"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dripfeed_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	rpcRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_rpc_retry_attempts_total",
			Help: "Total number of retry attempts made after a transient RPC error",
		},
		[]string{"operation"},
	)

	rpcRetrySuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dripfeed_rpc_retry_successes_total",
			Help: "Total number of RPC operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)
)

func RPCMethodInc(method string) {
	rpcRequests.WithLabelValues(method).Inc()
}

func RPCMethodDuration(method string, duration time.Duration) {
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RPCMethodError(method, errorType string) {
	rpcErrors.WithLabelValues(method, errorType).Inc()
}

func RPCRetryAttempt(operation string) {
	rpcRetryAttempts.WithLabelValues(operation).Inc()
}

func RPCRetrySuccess(operation string) {
	rpcRetrySuccesses.WithLabelValues(operation).Inc()
}
