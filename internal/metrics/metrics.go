// Package metrics holds the Prometheus collectors for the progression engine
// and the HTTP layer. They register on the default registry and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CompletionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "completions_total",
	Help:      "Completion events committed, by effort tier.",
}, []string{"effort"})

var PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "points_awarded_total",
	Help:      "Sum of points_earned over committed events.",
})

var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "level_ups_total",
	Help:      "Completions that crossed at least one level threshold.",
})

var OutOfOrderEvents = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "out_of_order_total",
	Help:      "Completions whose period preceded the last recorded streak period.",
})

var RecordRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "record_retries_total",
	Help:      "Transaction retries after a lost optimistic version check.",
})

var RecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "engine",
	Name:      "record_failures_total",
	Help:      "Failed completions, by error kind.",
}, []string{"kind"})

var Exports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "export",
	Name:      "exports_total",
	Help:      "Exports rendered, by format.",
}, []string{"format"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "forestlog",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-user rate limiter.",
})

var ShareViews = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "forestlog",
	Subsystem: "share",
	Name:      "views_total",
	Help:      "Share link views served.",
})
