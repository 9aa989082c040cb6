package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_live_connections",
			Help: "Currently registered websocket connections",
		},
	)

	SessionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_rejected_total",
			Help: "Websocket handshakes rejected for invalid tokens",
		},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages durably appended to the store",
		},
	)

	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_delivered_total",
			Help: "Payloads delivered to live connections",
		},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_dropped_total",
			Help: "Payloads dropped on dead or backed-up connections",
		},
	)

	MalformedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_malformed_frames_total",
			Help: "Inbound frames discarded as malformed",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_persist_failures_total",
			Help: "Message appends that failed with the store unavailable",
		},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_users_registered_total",
			Help: "Total users registered",
		},
	)

	FriendRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_friend_requests_sent_total",
			Help: "Total friend requests sent",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
