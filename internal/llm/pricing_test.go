package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCostUSDKnownModel(t *testing.T) {
	cost := EstimateCostUSD("claude-sonnet-4-20250514", Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.Equal(t, "18", cost.String())
}

func TestEstimateCostUSDUnknownModelFallsBackToDefault(t *testing.T) {
	cost := EstimateCostUSD("some-future-model", Usage{PromptTokens: 1_000_000, CompletionTokens: 0})
	assert.Equal(t, "3", cost.String())
}

func TestEstimateCostUSDZeroUsage(t *testing.T) {
	cost := EstimateCostUSD("gpt-4.1", Usage{})
	assert.True(t, cost.IsZero())
}
