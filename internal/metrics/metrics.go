// Package metrics exposes the agent's Prometheus instrumentation,
// scraped at GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FactsAsserted counts facts asserted into the rule engine, by kind.
	FactsAsserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_facts_asserted_total",
			Help: "Total number of facts asserted into the rule engine",
		},
		[]string{"kind"},
	)

	FactsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_facts_dropped_total",
			Help: "Total number of facts dropped by the stream multiplexer under backpressure",
		},
		[]string{"source"},
	)

	// PatternMatches counts rule-engine candidates selected for action,
	// by runbook name.
	PatternMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_pattern_matches_total",
			Help: "Total number of incidents matched to a runbook by the rule engine",
		},
		[]string{"runbook"},
	)

	LLMFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incident_agent_llm_fallbacks_total",
			Help: "Total number of incidents routed to the LLM interpreter/analyzer/proposer path",
		},
	)

	// PlanDuration measures time spent in A* search per FindPlan call.
	PlanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "incident_agent_plan_duration_seconds",
			Help:    "Planner search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
	)

	PlanningFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incident_agent_planning_failures_total",
			Help: "Total number of FindPlan calls that found no path to the goal",
		},
	)

	// ExecutorOutcomes counts executor.Execute results by action name
	// and whether the step succeeded.
	ExecutorOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_executor_outcomes_total",
			Help: "Total number of action executions, by action and result",
		},
		[]string{"action", "result"}, // result: success/failure
	)

	CompensationsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_compensations_total",
			Help: "Total number of compensating actions executed, by action",
		},
		[]string{"action"},
	)

	// Escalations counts incidents escalated to a human, by decision
	// (approve/reject/take_over), or "unconfigured" when no escalation
	// channel is wired.
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_escalations_total",
			Help: "Total number of incidents escalated to a human operator",
		},
		[]string{"decision"},
	)

	IncidentsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incident_agent_incidents_resolved_total",
			Help: "Total number of incidents resolved by plan execution, including after an approved escalation",
		},
	)

	// WebhookRequests counts inbound webhook deliveries by source and
	// outcome.
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_webhook_requests_total",
			Help: "Total number of webhook requests received, by source and status",
		},
		[]string{"source", "status"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "incident_agent_websocket_connections",
			Help: "Current number of connected websocket push-feed clients",
		},
	)
)
