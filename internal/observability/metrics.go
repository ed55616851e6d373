package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Decision loop cycles and termination reasons
//   - LLM request performance, token usage, and estimated cost
//   - Tool execution patterns and latencies
//   - Approval requests and envelope repair invocations
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordDecisionCycle("reply")
//	defer metrics.LLMRequestDuration.WithLabelValues("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider (anthropic|openai), model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (agent|dispatch|mcp|envelope), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveRuns is a gauge tracking currently executing decision loop runs.
	ActiveRuns prometheus.Gauge

	// RunDuration measures the wall-clock lifetime of a decision loop run in seconds.
	// Buckets: 1s, 5s, 15s, 30s, 60s, 300s, 600s, 1800s
	RunDuration prometheus.Histogram

	// RunAttempts counts run attempts (for retry tracking).
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec

	// DecisionCycles counts decision loop cycles by the state the envelope
	// terminated in for that cycle (reply|tool|observation|clarify|confirm|...).
	DecisionCycles *prometheus.CounterVec

	// DecisionRetries counts validator-feedback retries the loop requested
	// before accepting an envelope.
	// Labels: reason (schema_invalid|unknown_state|decode_error)
	DecisionRetries *prometheus.CounterVec

	// ApprovalRequests counts confirm-state envelopes surfaced to the operator.
	// Labels: outcome (approved|denied|auto_approved)
	ApprovalRequests *prometheus.CounterVec

	// EnvelopeRepairs counts automatic envelope-repair invocations and their
	// outcome.
	// Labels: outcome (repaired|failed)
	EnvelopeRepairs *prometheus.CounterVec

	// BudgetStops counts runs halted by a budget guard.
	// Labels: reason (cycles|tokens|wall_clock)
	BudgetStops *prometheus.CounterVec

	// MCPCallDuration measures MCP tool-call latency in seconds.
	// Labels: server_id, method
	MCPCallDuration *prometheus.HistogramVec

	// MCPCallCounter counts MCP calls by server and outcome.
	// Labels: server_id, method, status (success|error)
	MCPCallCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cephiq_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cephiq_context_window_tokens",
				Help:    "Context window tokens used per request",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cephiq_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cephiq_active_runs",
				Help: "Current number of decision loop runs in progress",
			},
		),

		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cephiq_run_duration_seconds",
				Help:    "Wall-clock duration of a decision loop run in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800},
			},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_run_attempts_total",
				Help: "Total number of run attempts by status",
			},
			[]string{"status"},
		),

		DecisionCycles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_decision_cycles_total",
				Help: "Total number of decision loop cycles by terminal envelope state",
			},
			[]string{"state"},
		),

		DecisionRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_decision_retries_total",
				Help: "Total number of validator-feedback retries requested of the provider",
			},
			[]string{"reason"},
		),

		ApprovalRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_approval_requests_total",
				Help: "Total number of confirm-state envelopes and their resolution",
			},
			[]string{"outcome"},
		),

		EnvelopeRepairs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_envelope_repairs_total",
				Help: "Total number of automatic envelope-repair invocations and their outcome",
			},
			[]string{"outcome"},
		),

		BudgetStops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_budget_stops_total",
				Help: "Total number of runs halted by a budget guard",
			},
			[]string{"reason"},
		),

		MCPCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cephiq_mcp_call_duration_seconds",
				Help:    "Duration of MCP tool calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"server_id", "method"},
		),

		MCPCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephiq_mcp_calls_total",
				Help: "Total number of MCP calls by server, method, and status",
			},
			[]string{"server_id", "method", "status"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
//
// Example:
//
//	metrics.RecordContextWindow("anthropic", "claude-3-opus", 45000)
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("agent", "api_timeout")
//	metrics.RecordError("envelope", "schema_invalid")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RunStarted increments the active runs gauge.
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunEnded decrements the active runs gauge and records run duration.
//
// Example:
//
//	start := time.Now()
//	// ... run lifecycle ...
//	metrics.RunEnded(time.Since(start).Seconds())
func (m *Metrics) RunEnded(durationSeconds float64) {
	m.ActiveRuns.Dec()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunAttempt records a run attempt.
//
// Example:
//
//	metrics.RecordRunAttempt("success")
//	metrics.RecordRunAttempt("retry")
//	metrics.RecordRunAttempt("failed")
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}

// RecordDecisionCycle records one decision loop cycle terminating in the
// given envelope state.
//
// Example:
//
//	metrics.RecordDecisionCycle("tool")
//	metrics.RecordDecisionCycle("reply")
func (m *Metrics) RecordDecisionCycle(state string) {
	m.DecisionCycles.WithLabelValues(state).Inc()
}

// RecordDecisionRetry records a validator-feedback retry.
//
// Example:
//
//	metrics.RecordDecisionRetry("schema_invalid")
func (m *Metrics) RecordDecisionRetry(reason string) {
	m.DecisionRetries.WithLabelValues(reason).Inc()
}

// RecordApprovalRequest records a confirm-state envelope resolution.
//
// Example:
//
//	metrics.RecordApprovalRequest("approved")
//	metrics.RecordApprovalRequest("denied")
//	metrics.RecordApprovalRequest("auto_approved")
func (m *Metrics) RecordApprovalRequest(outcome string) {
	m.ApprovalRequests.WithLabelValues(outcome).Inc()
}

// RecordEnvelopeRepair records an automatic envelope-repair attempt.
//
// Example:
//
//	metrics.RecordEnvelopeRepair("repaired")
//	metrics.RecordEnvelopeRepair("failed")
func (m *Metrics) RecordEnvelopeRepair(outcome string) {
	m.EnvelopeRepairs.WithLabelValues(outcome).Inc()
}

// RecordBudgetStop records a run halted by a budget guard.
//
// Example:
//
//	metrics.RecordBudgetStop("cycles")
//	metrics.RecordBudgetStop("tokens")
//	metrics.RecordBudgetStop("wall_clock")
func (m *Metrics) RecordBudgetStop(reason string) {
	m.BudgetStops.WithLabelValues(reason).Inc()
}

// RecordMCPCall records metrics for an MCP tool call.
//
// Example:
//
//	start := time.Now()
//	// ... call MCP tool ...
//	metrics.RecordMCPCall("filesystem", "tools/call", "success", time.Since(start).Seconds())
func (m *Metrics) RecordMCPCall(serverID, method, status string, durationSeconds float64) {
	m.MCPCallCounter.WithLabelValues(serverID, method, status).Inc()
	m.MCPCallDuration.WithLabelValues(serverID, method).Observe(durationSeconds)
}
