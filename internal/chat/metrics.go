// internal/chat/metrics.go

package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of accepted messages",
		},
		[]string{"type"},
	)

	messagesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Total number of rejected sends by reason code",
		},
		[]string{"reason"},
	)

	receiptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_receipts_total",
			Help: "Total number of delivery receipts recorded",
		},
		[]string{"status"},
	)

	failedDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_failed_deliveries_total",
			Help: "Total number of failed delivery reports",
		},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_send_duration_seconds",
			Help:    "End-to-end send pipeline latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Currently connected websocket clients",
		},
	)
)
