package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRates_CallCost(t *testing.T) {
	r := DefaultRates()
	tests := []struct {
		name     string
		call     APICall
		expected float64
	}{
		{"serper per call", APICall{Provider: "serper"}, 0.001},
		{"customsearch per call", APICall{Provider: "customsearch"}, 0.005},
		{"gemini tokens", APICall{Provider: "gemini", InputTokens: 4000, OutputTokens: 2000}, 0.003},
		{"openai tokens", APICall{Provider: "openai", InputTokens: 1000, OutputTokens: 1000}, 0.04},
		{"cache hit is free", APICall{Provider: "jina", CacheHit: true}, 0},
		{"unknown provider is free", APICall{Provider: "bing"}, 0},
		{"rounded to 1e-6", APICall{Provider: "gemini", InputTokens: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, r.CallCost(tt.call), 1e-12)
		})
	}
}

func TestRates_ChunkCost(t *testing.T) {
	r := DefaultRates()
	cost := r.ChunkCost([]APICall{
		{Provider: "jina", DurationMs: 300},
		{Provider: "jina", DurationMs: 200},
		{Provider: "gemini", InputTokens: 1234, OutputTokens: 567, DurationMs: 900},
	}, 1500)

	assert.Equal(t, int64(1500), cost.DurationMs)
	assert.Equal(t, 2, cost.Providers["jina"].Calls)
	assert.Equal(t, int64(500), cost.Providers["jina"].DurationMs)
	assert.Equal(t, 1234, cost.Providers["gemini"].InputTokens)
	// 0.004 + 0.000876 rounds to 0.00488
	assert.InDelta(t, 0.00488, cost.CostUsd, 1e-12)
}

func TestParseRates(t *testing.T) {
	r, err := ParseRates(`{"serper":{"callCost":0.01},"Mistral":{"inputPer1k":0.002}}`)
	require.NoError(t, err)
	assert.Equal(t, 0.01, r["serper"].CallCost)
	assert.Equal(t, 0.002, r["mistral"].InputPer1k)
	assert.Equal(t, 0.002, r["jina"].CallCost)

	r, err = ParseRates("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRates(), r)

	_, err = ParseRates("{not json")
	assert.Error(t, err)
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "<$0.01", FormatCost(0.004))
	assert.Equal(t, "$0.00", FormatCost(0))
	assert.Equal(t, "$0.13", FormatCost(0.1289))
}
