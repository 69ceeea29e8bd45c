package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var QueryServiceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "neon",
	Subsystem: "query_service",
	Name:      "requests_total",
	Help:      "Requests sent to the query service by operation and outcome",
}, []string{"operation", "outcome"})

var QueryServiceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "neon",
	Subsystem: "query_service",
	Name:      "request_duration_seconds",
	Help:      "Latency of query service requests",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

var TimelineBuckets = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "neon",
	Subsystem: "timeline",
	Name:      "buckets",
	Help:      "Number of buckets produced per timeline refresh",
	Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
})

var FilterTablesApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "neon",
	Subsystem: "filter_tables",
	Name:      "applied_total",
	Help:      "Filter tables compiled and sent to the query service",
})

// Outcome labels
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed_response"
)
