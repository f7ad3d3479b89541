// Package types provides type definitions for structured data used throughout the content pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Search intents
const (
	IntentInformational = "informational"
	IntentCommercial    = "commercial"
	IntentTransactional = "transactional"
	IntentNavigational  = "navigational"
)

// Word count presets
const (
	PresetAuto     = "auto"
	PresetConcise  = "concise"
	PresetStandard = "standard"
	PresetInDepth  = "in_depth"
	PresetCustom   = "custom"
)

// Word count bounds for custom and competitor-derived targets.
const (
	MinWordCount     = 500
	MaxWordCount     = 6000
	DefaultWordCount = 1500
)

var presetWordCounts = map[string]int{
	PresetConcise:  1250,
	PresetStandard: 2000,
	PresetInDepth:  3200,
}

// WordCountNote accompanies every explicit word count target.
const WordCountNote = "Guideline only. Strong value: provide more value than competitors; length is secondary."

// ContentBrief is the input of a pipeline run.
type ContentBrief struct {
	PrimaryKeyword      string   `json:"primaryKeyword" validate:"required,max=200"`
	SecondaryKeywords   []string `json:"secondaryKeywords,omitempty" validate:"max=2,dive,max=200"`
	PeopleAlsoSearchFor []string `json:"peopleAlsoSearchFor,omitempty" validate:"max=5,dive,max=300"`
	Intent              string   `json:"intent,omitempty" validate:"omitempty,oneof=informational commercial transactional navigational"`
	Tone                string   `json:"tone,omitempty" validate:"omitempty,max=200"`
	WordCountPreset     string   `json:"wordCountPreset,omitempty" validate:"omitempty,oneof=auto concise standard in_depth custom"`
	WordCountCustom     int      `json:"wordCountCustom,omitempty" validate:"required_if=WordCountPreset custom,omitempty,min=500,max=6000"`
	SelectedURLs        []string `json:"selectedUrls,omitempty" validate:"max=3,dive,url"`
}

var briefValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize trims free-text fields and applies defaults.
func (b *ContentBrief) Normalize() {
	b.PrimaryKeyword = strings.TrimSpace(b.PrimaryKeyword)
	b.Tone = strings.TrimSpace(b.Tone)
	b.SecondaryKeywords = trimAll(b.SecondaryKeywords)
	b.PeopleAlsoSearchFor = trimAll(b.PeopleAlsoSearchFor)
	b.SelectedURLs = trimAll(b.SelectedURLs)
	if b.Intent == "" {
		b.Intent = IntentInformational
	}
	if b.WordCountPreset == "" {
		b.WordCountPreset = PresetAuto
	}
}

// Validate normalizes the brief and checks it against its validation tags.
func (b *ContentBrief) Validate() error {
	b.Normalize()
	return briefValidator.Struct(b)
}

// FieldError describes one invalid brief field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors flattens a validation error into per-field messages. Errors that
// are not validator errors are returned as a single entry with no field.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// ExplicitWordCount returns the target implied by the preset, or false for auto.
func (b *ContentBrief) ExplicitWordCount() (int, bool) {
	switch b.WordCountPreset {
	case PresetCustom:
		if b.WordCountCustom < MinWordCount || b.WordCountCustom > MaxWordCount {
			return 0, false
		}
		return b.WordCountCustom, true
	case "", PresetAuto:
		return 0, false
	default:
		n, ok := presetWordCounts[b.WordCountPreset]
		return n, ok
	}
}

// TargetWordCount resolves the word count target, falling back to the
// competitor average for auto.
func (b *ContentBrief) TargetWordCount(competitorAverage int) int {
	if n, ok := b.ExplicitWordCount(); ok {
		return n
	}
	return ClampWordCount(competitorAverage)
}

// ClampWordCount clamps a competitor-derived target to the allowed range.
// Zero or negative input yields the default.
func ClampWordCount(n int) int {
	switch {
	case n <= 0:
		return DefaultWordCount
	case n < MinWordCount:
		return MinWordCount
	case n > MaxWordCount:
		return MaxWordCount
	default:
		return n
	}
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
