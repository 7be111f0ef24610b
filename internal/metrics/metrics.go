package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orchestrator metrics for production monitoring
var (
	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicops_ai_turns_total",
			Help: "Total number of turns processed",
		},
		[]string{"intent", "status"}, // status: completed/clarification/rejected/cancelled
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicops_ai_turn_duration_seconds",
			Help:    "Turn duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"intent"},
	)

	ClarificationsAsked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicops_ai_clarifications_asked_total",
			Help: "Total number of clarifying questions asked",
		},
	)

	// Evidence collaborator metrics
	CollaboratorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicops_ai_collaborator_requests_total",
			Help: "Total number of evidence collaborator queries",
		},
		[]string{"source", "status"}, // status: ok/unavailable/timeout
	)

	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicops_ai_collaborator_duration_seconds",
			Help:    "Evidence collaborator query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"source"},
	)

	EvidenceItemsGathered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicops_ai_evidence_items_total",
			Help: "Total number of evidence items gathered",
		},
		[]string{"source"},
	)

	// Run recorder metrics
	RunsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicops_ai_runs_recorded_total",
			Help: "Total number of runs persisted",
		},
	)

	RunPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicops_ai_run_persist_failures_total",
			Help: "Total number of run persistence failures",
		},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "civicops_ai_sessions_active",
			Help: "Current number of live sessions",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicops_ai_sessions_expired_total",
			Help: "Total number of sessions evicted by TTL",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "civicops_ai_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicops_ai_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
