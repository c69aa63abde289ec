// Package cost tracks what the LLM fallback spends: token counts per batch
// and the dollar figure they translate to at per-model rates.
package cost

import "sync"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps Anthropic model names to their pricing.
type Rates map[string]ModelRate

// DefaultRates returns the default pricing table.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
	}
}

// Calculator computes call costs from the rate table.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one call. Unknown models cost zero.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Usage is a point-in-time snapshot of accumulated spend.
type Usage struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Tracker accumulates token usage across calls. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calc  *Calculator
	usage Usage
}

// NewTracker creates a Tracker pricing calls with the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{calc: NewCalculator(rates)}
}

// Record adds one call's token counts.
func (t *Tracker) Record(model string, input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Calls++
	t.usage.InputTokens += input
	t.usage.OutputTokens += output
	t.usage.CostUSD += t.calc.Claude(model, input, output)
}

// Snapshot returns the accumulated usage.
func (t *Tracker) Snapshot() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}
