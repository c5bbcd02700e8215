package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Envelope intake metrics
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_envelopes_total",
			Help: "Total number of envelopes received, by outcome",
		},
		[]string{"status"},
	)

	EnvelopeBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_envelope_bytes_total",
			Help: "Total bytes of envelope bodies received (before decompression)",
		},
	)

	ExtractionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_extraction_errors_total",
			Help: "Total number of envelopes rejected during event extraction",
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faultline_storage_duration_seconds",
			Help:    "Duration of event persistence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_storage_errors_total",
			Help: "Total number of event persistence errors",
		},
	)

	EventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_events_persisted_total",
			Help: "Total number of events persisted",
		},
	)

	// Notification metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_notification_deliveries_total",
			Help: "Total number of webhook deliveries, by channel kind and outcome",
		},
		[]string{"kind", "status"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_notification_delivery_duration_seconds",
			Help:    "Duration of webhook deliveries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Side-effect metrics
	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_publish_errors_total",
			Help: "Total number of failed event publications",
		},
	)

	IndexErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_index_errors_total",
			Help: "Total number of failed search index writes",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// HTTP server metrics, labelled by matched route pattern
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
