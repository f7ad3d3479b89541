package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jonathan/content-pipeline/internal/jobs"
)

// ProviderRate is the USD cost model of one provider.
type ProviderRate struct {
	CallCost    float64 `json:"callCost,omitempty" yaml:"call_cost,omitempty"`
	InputPer1k  float64 `json:"inputPer1k,omitempty" yaml:"input_per_1k,omitempty"`
	OutputPer1k float64 `json:"outputPer1k,omitempty" yaml:"output_per_1k,omitempty"`
}

// Rates maps provider name to its cost model.
type Rates map[string]ProviderRate

// DefaultRates returns the built-in cost rates.
func DefaultRates() Rates {
	return Rates{
		"serper":       {CallCost: 0.001},
		"customsearch": {CallCost: 0.005},
		"jina":         {CallCost: 0.002},
		"gemini":       {InputPer1k: 0.00025, OutputPer1k: 0.001},
		"openai":       {InputPer1k: 0.01, OutputPer1k: 0.03},
		"anthropic":    {InputPer1k: 0.003, OutputPer1k: 0.015},
	}
}

// ParseRates decodes a JSON rate override (as in PIPELINE_COST_RATES) and
// merges it over the defaults. An empty string yields the defaults.
func ParseRates(raw string) (Rates, error) {
	rates := DefaultRates()
	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}
	var override Rates
	if err := json.Unmarshal([]byte(raw), &override); err != nil {
		return nil, fmt.Errorf("failed to parse cost rates: %w", err)
	}
	return rates.Merge(override), nil
}

// Merge returns a copy of r with every provider in override replaced.
func (r Rates) Merge(override Rates) Rates {
	out := make(Rates, len(r)+len(override))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range override {
		out[strings.ToLower(k)] = v
	}
	return out
}

// CallCost estimates one call. Cache hits and unknown providers are free.
func (r Rates) CallCost(c APICall) float64 {
	if c.CacheHit {
		return 0
	}
	rate, ok := r[c.Provider]
	if !ok {
		return 0
	}
	usd := rate.CallCost
	usd += float64(c.InputTokens) / 1000 * rate.InputPer1k
	usd += float64(c.OutputTokens) / 1000 * rate.OutputPer1k
	return roundTo(usd, 1e6)
}

// Cost sums the estimated cost of calls, rounded to 1e-6.
func (r Rates) Cost(calls []APICall) float64 {
	total := 0.0
	for _, c := range calls {
		total += r.CallCost(c)
	}
	return roundTo(total, 1e6)
}

// ChunkCost builds the persisted cost of a chunk from its calls. Provider usage
// is summed per provider; the dollar figure is rounded to 1e-5.
func (r Rates) ChunkCost(calls []APICall, durationMs int64) *jobs.ChunkCost {
	cost := &jobs.ChunkCost{DurationMs: durationMs}
	if len(calls) > 0 {
		cost.Providers = make(map[string]jobs.ProviderUsage, len(calls))
	}
	usd := 0.0
	for _, c := range calls {
		u := cost.Providers[c.Provider]
		u.Calls++
		u.InputTokens += c.InputTokens
		u.OutputTokens += c.OutputTokens
		u.DurationMs += c.DurationMs
		cost.Providers[c.Provider] = u
		usd += r.CallCost(c)
	}
	cost.CostUsd = jobs.RoundCost(usd)
	return cost
}

// FormatCost renders a dollar amount for humans.
func FormatCost(usd float64) string {
	if usd > 0 && usd < 0.01 {
		return "<$0.01"
	}
	return fmt.Sprintf("$%.2f", usd)
}

func roundTo(v, scale float64) float64 {
	return math.Round(v*scale) / scale
}
