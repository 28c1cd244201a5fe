// Package metrics holds the Prometheus collectors for agentrelay and a small
// HTTP listener that exposes them next to the MCP stdio transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_sessions_created_total",
			Help: "Total sessions created",
		},
	)

	SessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_sessions_closed_total",
			Help: "Total sessions closed",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentrelay_messages_sent_total",
			Help: "Total messages appended to sessions",
		},
	)

	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrelay_side_effect_failures_total",
			Help: "Swallowed failures talking to the mirror store or group-chat backend",
		},
		[]string{"channel", "op"},
	)

	ContextMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrelay_context_messages_processed_total",
			Help: "Messages enriched by the context bridge",
		},
		[]string{"task_type"},
	)
)
