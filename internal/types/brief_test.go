package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentBrief_Validate(t *testing.T) {
	tests := []struct {
		name      string
		brief     ContentBrief
		wantField string
	}{
		{
			name:  "minimal brief",
			brief: ContentBrief{PrimaryKeyword: "  botox aftercare  "},
		},
		{
			name:      "missing keyword",
			brief:     ContentBrief{PrimaryKeyword: "   "},
			wantField: "primaryKeyword",
		},
		{
			name:      "keyword too long",
			brief:     ContentBrief{PrimaryKeyword: strings.Repeat("a", 201)},
			wantField: "primaryKeyword",
		},
		{
			name:      "too many secondary keywords",
			brief:     ContentBrief{PrimaryKeyword: "k", SecondaryKeywords: []string{"a", "b", "c"}},
			wantField: "secondaryKeywords",
		},
		{
			name:      "too many PASF",
			brief:     ContentBrief{PrimaryKeyword: "k", PeopleAlsoSearchFor: []string{"1", "2", "3", "4", "5", "6"}},
			wantField: "peopleAlsoSearchFor",
		},
		{
			name:      "unknown intent",
			brief:     ContentBrief{PrimaryKeyword: "k", Intent: "curious"},
			wantField: "intent",
		},
		{
			name:      "custom preset without count",
			brief:     ContentBrief{PrimaryKeyword: "k", WordCountPreset: PresetCustom},
			wantField: "wordCountCustom",
		},
		{
			name:      "custom count out of range",
			brief:     ContentBrief{PrimaryKeyword: "k", WordCountPreset: PresetCustom, WordCountCustom: 7000},
			wantField: "wordCountCustom",
		},
		{
			name:      "too many selected urls",
			brief:     ContentBrief{PrimaryKeyword: "k", SelectedURLs: []string{"https://a.com", "https://b.com", "https://c.com", "https://d.com"}},
			wantField: "selectedUrls",
		},
		{
			name:      "invalid selected url",
			brief:     ContentBrief{PrimaryKeyword: "k", SelectedURLs: []string{"not a url"}},
			wantField: "selectedUrls[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.brief
			err := b.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			fields := FieldErrors(err)
			require.NotEmpty(t, fields)
			assert.Equal(t, tt.wantField, fields[0].Field)
		})
	}
}

func TestContentBrief_NormalizeDefaults(t *testing.T) {
	b := ContentBrief{PrimaryKeyword: " lip filler ", SecondaryKeywords: []string{" a ", ""}}
	require.NoError(t, b.Validate())
	assert.Equal(t, "lip filler", b.PrimaryKeyword)
	assert.Equal(t, IntentInformational, b.Intent)
	assert.Equal(t, PresetAuto, b.WordCountPreset)
	assert.Equal(t, []string{"a"}, b.SecondaryKeywords)
}

func TestContentBrief_TargetWordCount(t *testing.T) {
	tests := []struct {
		name       string
		preset     string
		custom     int
		competitor int
		expected   int
	}{
		{"concise", PresetConcise, 0, 900, 1250},
		{"standard", PresetStandard, 0, 900, 2000},
		{"in depth", PresetInDepth, 0, 900, 3200},
		{"custom", PresetCustom, 2750, 900, 2750},
		{"auto uses competitor average", PresetAuto, 0, 2400, 2400},
		{"auto clamps low", PresetAuto, 0, 120, 500},
		{"auto clamps high", PresetAuto, 0, 9000, 6000},
		{"auto without competitors", PresetAuto, 0, 0, 1500},
		{"empty preset behaves as auto", "", 0, 1800, 1800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ContentBrief{WordCountPreset: tt.preset, WordCountCustom: tt.custom}
			assert.Equal(t, tt.expected, b.TargetWordCount(tt.competitor))
		})
	}
}

func TestFieldErrors_NonValidatorError(t *testing.T) {
	fields := FieldErrors(assert.AnError)
	require.Len(t, fields, 1)
	assert.Empty(t, fields[0].Field)
	assert.Equal(t, assert.AnError.Error(), fields[0].Message)
}
