package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance and response times
//   - Tool execution patterns and latencies
//   - MCP server handshake and discovery outcomes
//   - Error rates categorized by component
//   - Chat store query latency
//   - HTTP facade request latency
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordLLMRequest("gpt-4o", "success", time.Since(start).Seconds(), 100, 500)
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by model and status.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// MCPHandshakeCounter counts MCP session handshakes by server and outcome.
	// Labels: server, outcome (header|body|failsafe|unauthenticated|failed)
	MCPHandshakeCounter *prometheus.CounterVec

	// MCPDiscoveryDuration measures per-server tool discovery latency.
	// Labels: server
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s
	MCPDiscoveryDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error kind.
	// Labels: component (orchestrator|mcpclient|llmclient|chatstore|authcache), error_kind
	ErrorCounter *prometheus.CounterVec

	// ActiveChats is a gauge tracking the number of chats with an
	// in-flight assistant turn.
	ActiveChats prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// ChatStoreQueryDuration measures chat store operation latency.
	// Labels: operation (append|get_messages|update_raw_content|mark_read)
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	ChatStoreQueryDuration *prometheus.HistogramVec

	// ChatStoreQueryCounter counts chat store operations.
	// Labels: operation, status (success|error)
	ChatStoreQueryCounter *prometheus.CounterVec

	// ContentFilterTooLong counts responses rejected for exceeding the
	// persisted-content length limit.
	ContentFilterTooLong prometheus.Counter

	// ContentFilterEmptied counts responses that became empty after
	// tool-status filtering, and were therefore not persisted.
	ContentFilterEmptied prometheus.Counter

	// ToolRoundsPerTurn observes how many LLM-stream/tool-invocation
	// rounds a completed turn used.
	ToolRoundsPerTurn prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default
// registry and will be available at the /metrics endpoint.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_llm_tokens_total",
				Help: "Total number of tokens used by model and type",
			},
			[]string{"model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		MCPHandshakeCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_mcp_handshakes_total",
				Help: "Total number of MCP session handshakes by server and outcome",
			},
			[]string{"server", "outcome"},
		),

		MCPDiscoveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_mcp_discovery_duration_seconds",
				Help:    "Duration of per-server MCP tool discovery in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"server"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_errors_total",
				Help: "Total number of errors by component and error kind",
			},
			[]string{"component", "error_kind"},
		),

		ActiveChats: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "conduit_active_chats",
				Help: "Current number of chats with an in-flight assistant turn",
			},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		ChatStoreQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_chatstore_query_duration_seconds",
				Help:    "Duration of chat store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		ChatStoreQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_chatstore_queries_total",
				Help: "Total number of chat store operations",
			},
			[]string{"operation", "status"},
		),

		ContentFilterTooLong: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "conduit_content_filter_too_long_total",
				Help: "Total number of assistant responses rejected for exceeding the content length limit",
			},
		),

		ContentFilterEmptied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "conduit_content_filter_emptied_total",
				Help: "Total number of assistant responses that became empty after tool-status filtering",
			},
		),

		ToolRoundsPerTurn: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_rounds_per_turn",
				Help:    "Number of LLM-stream/tool-invocation rounds used per completed turn",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
			},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("gpt-4o", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
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

// RecordMCPHandshake records the outcome of one MCP session handshake.
//
// Example:
//
//	metrics.RecordMCPHandshake("web-search", "header")
//	metrics.RecordMCPHandshake("web-search", "failed")
func (m *Metrics) RecordMCPHandshake(server, outcome string) {
	m.MCPHandshakeCounter.WithLabelValues(server, outcome).Inc()
}

// RecordMCPDiscovery records per-server tool discovery latency.
func (m *Metrics) RecordMCPDiscovery(server string, durationSeconds float64) {
	m.MCPDiscoveryDuration.WithLabelValues(server).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error kind.
//
// Example:
//
//	metrics.RecordError("mcpclient", "transport")
//	metrics.RecordError("orchestrator", "content_too_long")
func (m *Metrics) RecordError(component, errorKind string) {
	m.ErrorCounter.WithLabelValues(component, errorKind).Inc()
}

// TurnStarted increments the active chats gauge.
func (m *Metrics) TurnStarted() {
	m.ActiveChats.Inc()
}

// TurnEnded decrements the active chats gauge and observes the number of
// tool-invocation rounds the turn used.
func (m *Metrics) TurnEnded(rounds int) {
	m.ActiveChats.Dec()
	m.ToolRoundsPerTurn.Observe(float64(rounds))
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("POST", "/v1/chats/{id}/messages", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordChatStoreQuery records metrics for a chat store operation.
//
// Example:
//
//	start := time.Now()
//	// ... execute chat store operation ...
//	metrics.RecordChatStoreQuery("append", "success", time.Since(start).Seconds())
func (m *Metrics) RecordChatStoreQuery(operation, status string, durationSeconds float64) {
	m.ChatStoreQueryCounter.WithLabelValues(operation, status).Inc()
	m.ChatStoreQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordContentTooLong records a response rejected for exceeding the
// content length limit.
func (m *Metrics) RecordContentTooLong() {
	m.ContentFilterTooLong.Inc()
}

// RecordContentEmptiedByFilter records a response that became empty after
// tool-status filtering.
func (m *Metrics) RecordContentEmptiedByFilter() {
	m.ContentFilterEmptied.Inc()
}
