package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Negotiation metrics
	NegotiationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_negotiation_transitions_total",
			Help: "Negotiation state transitions by resulting event",
		},
		[]string{"event"},
	)

	NegotiationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealroom_negotiation_conflicts_total",
			Help: "Mutations rejected by the version check",
		},
	)

	// Channel metrics
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealroom_messages_appended_total",
			Help: "Chat messages appended to the message store",
		},
	)

	UnreadIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_unread_updates_total",
			Help: "Unread counter updates on delivery",
		},
		[]string{"result"}, // "incremented" or "viewing"
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dealroom_websocket_connections",
			Help: "Open WebSocket connections on this node",
		},
	)

	ChannelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_channel_errors_total",
			Help: "Error frames sent to connections by code",
		},
		[]string{"code"},
	)

	// Background workers
	OutboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_outbox_events_total",
			Help: "Outbox events handled by outcome",
		},
		[]string{"outcome"}, // "completed", "retried", "failed"
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"action"},
	)
)
