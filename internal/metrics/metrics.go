package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database connection
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_db_connection_open",
		Help: "Number of open database connections",
	})

	// ============================================
	// NATS connection and messages
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_nats_messages_published_total",
			Help: "Total number of bridge events republished on NATS",
		},
		[]string{"event_type"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_nats_publish_errors_total",
			Help: "Total number of NATS publish failures",
		},
		[]string{"event_type"},
	)

	// ============================================
	// Bridge state machine
	// ============================================
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "Transfers by direction, asset kind and final status",
		},
		[]string{"direction", "kind", "status"},
	)

	TransferErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfer_errors_total",
			Help: "Failed bridge operations by error code",
		},
		[]string{"operation", "code"},
	)

	BridgePaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_paused",
		Help: "Bridge pause flag (1=paused, 0=active)",
	})

	ProcessedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_processed_messages_total",
		Help: "Inbound messages recorded in the idempotency ledger",
	})

	// ============================================
	// Relay network
	// ============================================
	RelayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_relay_call_duration_seconds",
			Help:    "Relay network call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	RelayCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_call_errors_total",
			Help: "Relay network call failures",
		},
		[]string{"call", "reason"},
	)

	// ============================================
	// WebSocket push
	// ============================================
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_websocket_clients",
		Help: "Connected WebSocket event subscribers",
	})
)
