package report

import "github.com/goodmachinaii/openclaw-rlm-skill/internal/rlm"

// Price is USD per one million tokens for a given role.
type Price struct {
	Input       float64
	CachedInput float64
	Output      float64
}

// prices covers the models reachable through the built-in profiles, in USD
// per one million tokens.
var prices = map[string]Price{
	"gpt-5.3-codex":         {Input: 1.25, CachedInput: 0.125, Output: 10.00},
	"gpt-5.1-codex-mini":    {Input: 0.25, CachedInput: 0.025, Output: 2.00},
	"gpt-5.2":               {Input: 1.75, CachedInput: 0.175, Output: 14.00},
	"kimi-k2.5":             {Input: 0.60, CachedInput: 0.10, Output: 2.50},
	"kimi-k2-turbo-preview": {Input: 1.15, CachedInput: 0.15, Output: 8.00},
	"kimi-k2-turbo":         {Input: 1.15, CachedInput: 0.15, Output: 8.00},
}

// ModelCost is the per-model breakdown inside a CostEstimate.
type ModelCost struct {
	InputUSD  float64 `json:"input_usd"`
	OutputUSD float64 `json:"output_usd"`
	TotalUSD  float64 `json:"total_usd"`
}

// CostEstimate prices a run's token usage against the static table.
type CostEstimate struct {
	Models            map[string]ModelCost `json:"models"`
	TotalEstimatedUSD float64              `json:"total_estimated_usd"`
}

const tokensPerUnit = 1_000_000

// Estimate prices the usage summary. It returns nil when there is no usage
// or when any model in the summary is missing from the price table. When the
// engine reports cache hits those tokens are priced at the cached rate and
// the remainder at the input rate; without cache detail everything is priced
// as uncached input.
func Estimate(usage *rlm.UsageSummary) *CostEstimate {
	if usage == nil || len(usage.Models) == 0 {
		return nil
	}

	est := &CostEstimate{Models: make(map[string]ModelCost, len(usage.Models))}
	for model, u := range usage.Models {
		p, ok := prices[model]
		if !ok {
			return nil
		}

		var inputUSD float64
		if u.CachedInputTokens != nil {
			cached := min(*u.CachedInputTokens, u.InputTokens)
			fresh := u.InputTokens - cached
			inputUSD = float64(cached)/tokensPerUnit*p.CachedInput +
				float64(fresh)/tokensPerUnit*p.Input
		} else {
			inputUSD = float64(u.InputTokens) / tokensPerUnit * p.Input
		}
		outputUSD := float64(u.OutputTokens) / tokensPerUnit * p.Output

		mc := ModelCost{
			InputUSD:  inputUSD,
			OutputUSD: outputUSD,
			TotalUSD:  inputUSD + outputUSD,
		}
		est.Models[model] = mc
		est.TotalEstimatedUSD += mc.TotalUSD
	}
	return est
}
