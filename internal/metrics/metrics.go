// Package metrics exposes the Prometheus counters and gauges the MCP client
// subsystem updates. It has no knowledge of session internals; callers pass
// in the endpoint/tool names they already have at hand.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MCPToolCalls counts MCP tool executions, labeled by endpoint, tool, and
	// outcome (success, error, circuit_breaker_rejected, not_connected).
	MCPToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_tool_calls_total",
		Help: "The total number of MCP tool invocations",
	}, []string{"endpoint", "tool", "status"})

	// SessionState reports the current state machine value per endpoint, one
	// gauge set to 1 per (endpoint, state) pair and 0 for all others.
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcp_session_state",
		Help: "Current Session state per endpoint (1 = active state, 0 = inactive)",
	}, []string{"endpoint", "state"})

	// ReconnectAttempts counts reconnection attempts, labeled by endpoint and
	// outcome (success, failure).
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_reconnect_attempts_total",
		Help: "The total number of reconnect attempts made by the supervisor",
	}, []string{"endpoint", "outcome"})

	// CircuitTransitions counts circuit breaker state transitions per
	// endpoint (opened, closed, reset).
	CircuitTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_circuit_transitions_total",
		Help: "Circuit breaker state transitions per endpoint",
	}, []string{"endpoint", "transition"})

	// RegisteredTools tracks the number of host-visible tools currently
	// registered for an endpoint.
	RegisteredTools = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcp_registered_tools",
		Help: "Number of MCP tools currently registered in the host ToolRouter",
	}, []string{"endpoint"})
)
