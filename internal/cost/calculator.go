// Package cost estimates Anthropic API spend for the extraction pipeline.
package cost

import (
	"sync"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one completion call. Unknown models cost 0;
// the estimate is advisory, never a gate.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Tracker accumulates token usage and estimated spend across calls. Safe
// for concurrent use by parallel chunk extractions.
type Tracker struct {
	calc *Calculator

	mu           sync.Mutex
	inputTokens  int64
	outputTokens int64
	totalUSD     float64
}

// NewTracker creates a Tracker over the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{calc: NewCalculator(rates)}
}

// Add records one call's token usage.
func (t *Tracker) Add(model string, input, output int64) {
	usd := t.calc.Claude(model, input, output)
	t.mu.Lock()
	t.inputTokens += input
	t.outputTokens += output
	t.totalUSD += usd
	t.mu.Unlock()
}

// Totals returns accumulated input tokens, output tokens, and estimated USD.
func (t *Tracker) Totals() (int64, int64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTokens, t.outputTokens, t.totalUSD
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
	}
}
