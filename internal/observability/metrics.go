package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus instruments the engine updates.
// It is constructed once per process and threaded through the components
// that need it (LLM registry, validators); nothing here is exported
// globally so tests can use an isolated registry.
type Metrics struct {
	registry *prometheus.Registry

	LLMCallsTotal          *prometheus.CounterVec
	LLMCostUSDTotal        *prometheus.CounterVec
	LLMLatencyMillis       *prometheus.HistogramVec
	ValidatorRunsTotal     *prometheus.CounterVec
	ValidatorDurationSecs  *prometheus.HistogramVec
	MCPServerRestartsTotal *prometheus.CounterVec
}

// NewMetrics creates a fresh registry and registers every instrument.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoagent_llm_calls_total",
			Help: "Total LLM provider calls by agent, provider and status.",
		}, []string{"agent_name", "provider", "status"}),
		LLMCostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoagent_llm_cost_usd_total",
			Help: "Cumulative estimated LLM spend in USD.",
		}, []string{"agent_name", "provider", "model"}),
		LLMLatencyMillis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoagent_llm_latency_milliseconds",
			Help:    "LLM call latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		}, []string{"agent_name", "provider"}),
		ValidatorRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoagent_validator_runs_total",
			Help: "Validator invocations by language and outcome.",
		}, []string{"language", "outcome"}),
		ValidatorDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoagent_validator_duration_seconds",
			Help:    "Validator run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"language"}),
		MCPServerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoagent_mcp_server_restarts_total",
			Help: "MCP server subprocess restarts after a crash.",
		}, []string{"server_name"}),
	}

	reg.MustRegister(
		m.LLMCallsTotal,
		m.LLMCostUSDTotal,
		m.LLMLatencyMillis,
		m.ValidatorRunsTotal,
		m.ValidatorDurationSecs,
		m.MCPServerRestartsTotal,
	)

	return m
}

// Handler exposes the registry over HTTP in the Prometheus text exposition
// format; the start command mounts it at /metrics for external scrapers.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
