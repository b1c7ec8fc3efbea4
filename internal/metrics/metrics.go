package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arsynox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	FilesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_files_served_total",
			Help: "Files streamed to clients",
		},
		[]string{"kind", "strategy"}, // strategy: "token" or "direct"
	)

	GatewayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_gateway_errors_total",
			Help: "File gateway failures by error code",
		},
		[]string{"code"},
	)

	BlobsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_blobs_stored_total",
			Help: "Files archived into the storage channel",
		},
		[]string{"source"}, // "bot", "upload", "url"
	)

	// Upstream metrics
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arsynox_telegram_request_duration_seconds",
			Help:    "Bot API call latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_telegram_errors_total",
			Help: "Bot API calls that failed",
		},
		[]string{"method"},
	)

	// Broadcast metrics
	BroadcastSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_broadcast_sends_total",
			Help: "Broadcast deliveries by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "denied"
	)

	DirectoryRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arsynox_directory_removals_total",
			Help: "Recipients removed after a permission failure",
		},
	)

	// Webhook metrics
	WebhookUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_webhook_updates_total",
			Help: "Inbound webhook updates",
		},
		[]string{"result"}, // "accepted", "rejected", "malformed"
	)

	BackgroundTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_background_tasks_total",
			Help: "Detached background tasks by outcome",
		},
		[]string{"outcome"}, // "done", "timeout", "panic", "rejected", "cancelled"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"rule"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arsynox_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	DirectoryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arsynox_directory_latency_seconds",
			Help:    "User directory operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
