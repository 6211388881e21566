package validators

import (
	"context"

	"github.com/ki-autoagent/engine/internal/observability"
)

// AggregateWithMetrics wraps Aggregate, recording per-language run counts
// and durations against the shared Prometheus registry.
func AggregateWithMetrics(ctx context.Context, dir string, languages []Language, metrics *observability.Metrics) AggregateResult {
	agg := Aggregate(ctx, dir, languages)
	if metrics == nil {
		return agg
	}

	for _, result := range agg.Results {
		outcome := "skipped"
		if result.Ran {
			if result.ExitCode == 0 && result.ErrorCount == 0 {
				outcome = "pass"
			} else {
				outcome = "fail"
			}
			metrics.ValidatorDurationSecs.WithLabelValues(string(result.Language)).
				Observe(float64(result.DurationMillis) / 1000)
		}
		metrics.ValidatorRunsTotal.WithLabelValues(string(result.Language), outcome).Inc()
	}

	return agg
}
