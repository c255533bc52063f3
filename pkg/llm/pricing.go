package llm

import "math"

// Pricing holds per-1M-token USD prices for a model.
type Pricing struct {
	Input  float64
	Output float64
}

// modelPricing maps model identifiers to their prices per 1M tokens.
// Update as models change.
var modelPricing = map[string]Pricing{
	"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
	"gpt-4o":        {Input: 2.50, Output: 10.00},
	"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
	"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
}

// defaultPricing applies to models missing from the table.
var defaultPricing = Pricing{Input: 1.00, Output: 3.00}

// PricingFor returns the pricing for a model, falling back to the default
// for unknown models.
func PricingFor(model string) Pricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return defaultPricing
}

// Cost computes the USD cost of a completion, rounded to 8 decimal places.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := PricingFor(model)
	inputCost := float64(inputTokens) / 1_000_000 * p.Input
	outputCost := float64(outputTokens) / 1_000_000 * p.Output
	return math.Round((inputCost+outputCost)*1e8) / 1e8
}
