// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsewatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsewatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsewatch_ingest_total",
			Help: "Ingestions by terminal stage (done, rejected, or the stage that failed)",
		},
		[]string{"stage"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulsewatch_ingest_duration_seconds",
			Help:    "End-to-end ingestion latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsewatch_alerts_created_total",
			Help: "Alerts created by type",
		},
		[]string{"type"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsewatch_notifications_total",
			Help: "Emergency notifications by transport and status (sent, failed)",
		},
		[]string{"transport", "status"},
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsewatch_notification_duration_seconds",
			Help:    "Transport delivery latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"transport"},
	)

	// Live fan-out metrics
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsewatch_live_subscribers",
			Help: "Currently connected live subscribers",
		},
	)

	LiveEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsewatch_live_events_published_total",
			Help: "Events published to live subscribers",
		},
	)

	LiveSubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsewatch_live_subscribers_dropped_total",
			Help: "Subscribers disconnected because their queue was full",
		},
	)

	// Relay metrics
	RelayWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsewatch_relay_writes_total",
			Help: "Events forwarded to relay sinks by sink and status (ok, failed)",
		},
		[]string{"sink", "status"},
	)
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
