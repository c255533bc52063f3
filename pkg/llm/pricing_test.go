package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCost_KnownModel(t *testing.T) {
	// gpt-4o-mini: $0.15 in / $0.60 out per 1M tokens
	cost := Cost("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 1e-9)
}

func TestCost_UnknownModelUsesDefault(t *testing.T) {
	// default: $1.00 in / $3.00 out per 1M tokens
	cost := Cost("some-future-model", 500_000, 100_000)
	assert.InDelta(t, 0.5+0.3, cost, 1e-9)
}

func TestCost_ZeroTokens(t *testing.T) {
	assert.Zero(t, Cost("gpt-4o", 0, 0))
}

func TestCost_RoundedToEightDecimals(t *testing.T) {
	// 1 input token on gpt-4o-mini = 0.00000015 exactly at 8 decimals
	assert.Equal(t, 0.00000015, Cost("gpt-4o-mini", 1, 0))
}

func TestCost_MonotonicInTokens(t *testing.T) {
	base := Cost("gpt-4o", 1000, 1000)
	assert.GreaterOrEqual(t, Cost("gpt-4o", 2000, 1000), base)
	assert.GreaterOrEqual(t, Cost("gpt-4o", 1000, 2000), base)
}

func TestPricingFor(t *testing.T) {
	assert.Equal(t, Pricing{Input: 2.50, Output: 10.00}, PricingFor("gpt-4o"))
	assert.Equal(t, defaultPricing, PricingFor("nope"))
}
