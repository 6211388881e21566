package llm

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ki-autoagent/engine/internal/observability"
)

// LLMCallMetrics is one completed GenerateContent call, recorded for
// per-workflow cost and usage accounting independent of the aggregate
// Prometheus counters.
type LLMCallMetrics struct {
	AgentName        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          decimal.Decimal
	LatencyMillis    int64
	Err              string
	RecordedAt       time.Time
}

// callRecorder accumulates LLMCallMetrics across every instrumented
// provider in a Registry.
type callRecorder struct {
	mu    sync.Mutex
	calls []LLMCallMetrics
}

func (r *callRecorder) record(m LLMCallMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, m)
}

func (r *callRecorder) snapshot() []LLMCallMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LLMCallMetrics, len(r.calls))
	copy(out, r.calls)
	return out
}

// instrumentedProvider wraps a Provider to record call counts, latency and
// estimated cost against the shared Prometheus registry, and to append a
// structured LLMCallMetrics record to the owning Registry's recorder.
type instrumentedProvider struct {
	inner   Provider
	metrics *observability.Metrics
	rec     *callRecorder
}

// Instrumented wraps p so every GenerateContent call updates metrics and
// the registry's call-metrics log. If both metrics and rec are nil, p is
// returned unwrapped (used by tests).
func Instrumented(p Provider, metrics *observability.Metrics, rec *callRecorder) Provider {
	if metrics == nil && rec == nil {
		return p
	}
	return &instrumentedProvider{inner: p, metrics: metrics, rec: rec}
}

func (i *instrumentedProvider) Name() string { return i.inner.Name() }

func (i *instrumentedProvider) Close() error { return i.inner.Close() }

func (i *instrumentedProvider) GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		start := time.Now()
		status := "ok"
		agentName := agentNameFromContext(ctx)

		for resp, err := range i.inner.GenerateContent(ctx, req) {
			if err != nil {
				status = "error"
				latency := time.Since(start).Milliseconds()
				if i.metrics != nil {
					i.metrics.LLMCallsTotal.WithLabelValues(agentName, i.inner.Name(), status).Inc()
					i.metrics.LLMLatencyMillis.WithLabelValues(agentName, i.inner.Name()).
						Observe(float64(latency))
				}
				if i.rec != nil {
					i.rec.record(LLMCallMetrics{
						AgentName:     agentName,
						Provider:      i.inner.Name(),
						Model:         req.Model,
						LatencyMillis: latency,
						Err:           err.Error(),
						RecordedAt:    start,
					})
				}
				yield(resp, err)
				return
			}

			if !resp.Partial && resp.Usage != nil {
				cost := EstimateCostUSD(req.Model, *resp.Usage)
				costFloat, _ := cost.Float64()
				if i.metrics != nil {
					i.metrics.LLMCostUSDTotal.WithLabelValues(agentName, i.inner.Name(), req.Model).Add(costFloat)
				}
				if i.rec != nil {
					i.rec.record(LLMCallMetrics{
						AgentName:        agentName,
						Provider:         i.inner.Name(),
						Model:            req.Model,
						PromptTokens:     resp.Usage.PromptTokens,
						CompletionTokens: resp.Usage.CompletionTokens,
						CostUSD:          cost,
						LatencyMillis:    time.Since(start).Milliseconds(),
						RecordedAt:       start,
					})
				}
			}

			if !yield(resp, nil) {
				return
			}
		}

		if i.metrics != nil {
			i.metrics.LLMCallsTotal.WithLabelValues(agentName, i.inner.Name(), status).Inc()
			i.metrics.LLMLatencyMillis.WithLabelValues(agentName, i.inner.Name()).
				Observe(float64(time.Since(start).Milliseconds()))
		}
	}
}

type agentNameKey struct{}

// WithAgentName attaches the calling agent's name to ctx for metric labels.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey{}, name)
}

func agentNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(agentNameKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}
