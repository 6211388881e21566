package llm

import "github.com/shopspring/decimal"

// modelPrice holds per-million-token USD pricing. Using decimal rather than
// float64 avoids the rounding drift that would otherwise accumulate across
// a long-running workflow's many LLM calls.
type modelPrice struct {
	promptPerMillion     decimal.Decimal
	completionPerMillion decimal.Decimal
}

// pricingTable is a best-effort snapshot of published per-model pricing.
// Unknown models fall back to defaultPrice rather than erroring, since cost
// is an estimate surfaced to the caller, not a billing source of truth.
var pricingTable = map[string]modelPrice{
	"claude-sonnet-4-20250514": {
		promptPerMillion:     decimal.NewFromFloat(3.0),
		completionPerMillion: decimal.NewFromFloat(15.0),
	},
	"claude-opus-4-20250514": {
		promptPerMillion:     decimal.NewFromFloat(15.0),
		completionPerMillion: decimal.NewFromFloat(75.0),
	},
	"gpt-4.1": {
		promptPerMillion:     decimal.NewFromFloat(2.0),
		completionPerMillion: decimal.NewFromFloat(8.0),
	},
	"gpt-4.1-mini": {
		promptPerMillion:     decimal.NewFromFloat(0.4),
		completionPerMillion: decimal.NewFromFloat(1.6),
	},
	"sonar-pro": {
		promptPerMillion:     decimal.NewFromFloat(3.0),
		completionPerMillion: decimal.NewFromFloat(15.0),
	},
	"sonar": {
		promptPerMillion:     decimal.NewFromFloat(1.0),
		completionPerMillion: decimal.NewFromFloat(1.0),
	},
}

var defaultPrice = modelPrice{
	promptPerMillion:     decimal.NewFromFloat(3.0),
	completionPerMillion: decimal.NewFromFloat(15.0),
}

// EstimateCostUSD computes the estimated USD cost of usage against model.
func EstimateCostUSD(model string, usage Usage) decimal.Decimal {
	price, ok := pricingTable[model]
	if !ok {
		price = defaultPrice
	}

	million := decimal.NewFromInt(1_000_000)
	promptCost := decimal.NewFromInt(int64(usage.PromptTokens)).
		Div(million).Mul(price.promptPerMillion)
	completionCost := decimal.NewFromInt(int64(usage.CompletionTokens)).
		Div(million).Mul(price.completionPerMillion)

	return promptCost.Add(completionCost).Round(6)
}
