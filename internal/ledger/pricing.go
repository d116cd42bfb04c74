package ledger

import "strings"

// ModelPricing holds token prices in micros per one million tokens.
type ModelPricing struct {
	InputMicrosPerMillion  int64
	OutputMicrosPerMillion int64
}

// defaultPricing is charged when no table entry matches a model.
var defaultPricing = ModelPricing{
	InputMicrosPerMillion:  1_000_000,
	OutputMicrosPerMillion: 3_000_000,
}

// pricingTable maps provider -> model prefix -> pricing. Longest matching
// prefix wins, so dated snapshot names resolve to their base model.
var pricingTable = map[string]map[string]ModelPricing{
	"openai": {
		"gpt-4o":      {InputMicrosPerMillion: 2_500_000, OutputMicrosPerMillion: 10_000_000},
		"gpt-4o-mini": {InputMicrosPerMillion: 150_000, OutputMicrosPerMillion: 600_000},
		"gpt-4.1":     {InputMicrosPerMillion: 2_000_000, OutputMicrosPerMillion: 8_000_000},
		"o3":          {InputMicrosPerMillion: 2_000_000, OutputMicrosPerMillion: 8_000_000},
	},
	"anthropic": {
		"claude-3-5-haiku": {InputMicrosPerMillion: 800_000, OutputMicrosPerMillion: 4_000_000},
		"claude-sonnet":    {InputMicrosPerMillion: 3_000_000, OutputMicrosPerMillion: 15_000_000},
		"claude-opus":      {InputMicrosPerMillion: 15_000_000, OutputMicrosPerMillion: 75_000_000},
	},
	"gemini": {
		"gemini-2.0-flash": {InputMicrosPerMillion: 100_000, OutputMicrosPerMillion: 400_000},
		"gemini-2.5-flash": {InputMicrosPerMillion: 150_000, OutputMicrosPerMillion: 600_000},
		"gemini-2.5-pro":   {InputMicrosPerMillion: 1_250_000, OutputMicrosPerMillion: 10_000_000},
	},
}

// LookupPricing resolves the pricing for a provider/model pair, falling back
// to the default pricing when nothing matches.
func LookupPricing(provider, model string) ModelPricing {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.ToLower(strings.TrimSpace(model))
	table, ok := pricingTable[provider]
	if !ok {
		return defaultPricing
	}
	best := ""
	pricing := defaultPricing
	for prefix, candidate := range table {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
			pricing = candidate
		}
	}
	return pricing
}

// TokenCost converts token counts into micros for a provider/model pair.
func TokenCost(provider, model string, inputTokens, outputTokens int64) int64 {
	pricing := LookupPricing(provider, model)
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	return inputTokens*pricing.InputMicrosPerMillion/1_000_000 +
		outputTokens*pricing.OutputMicrosPerMillion/1_000_000
}
