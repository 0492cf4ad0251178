// Package metrics provides Prometheus instrumentation for rtconf.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtconf_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtconf_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Subscribe channel metrics.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtconf_active_sessions",
		Help: "Number of subscriber sessions connected to this process.",
	})

	MirroredSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtconf_mirrored_sessions",
		Help: "Number of subscriber sessions mirrored from peer processes.",
	})

	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtconf_sessions_rejected_total",
		Help: "Total number of sessions rejected by the connection limit.",
	})

	PullsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtconf_pulls_total",
		Help: "Total number of pull frames handled.",
	})

	PushFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtconf_push_frames_total",
		Help: "Total number of push frames written, by message type.",
	}, []string{"type"})
)

// Storage metrics.
var (
	StoreOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtconf_store_operations_total",
		Help: "Total number of storage backend operations, by backend and operation.",
	}, []string{"backend", "op"})
)

// Notification bus metrics.
var (
	BusEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtconf_bus_events_total",
		Help: "Total number of notification bus events handled, by callback.",
	}, []string{"func"})

	BusPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtconf_bus_publish_errors_total",
		Help: "Total number of failed notification bus publishes.",
	})
)
