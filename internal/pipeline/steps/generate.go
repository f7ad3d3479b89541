package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/prompts"
	"github.com/jonathan/content-pipeline/internal/schemas"
)

// jsonCall describes one structured model call.
type jsonCall struct {
	step      string
	promptKey string
	data      map[string]string
	tier      llm.ModelTier
	schema    string
	policy    RetryPolicy
}

// generateJSON renders a prompt, asks the model for JSON with retries,
// validates the document against its schema and decodes it.
func generateJSON[T any](ctx context.Context, deps *Dependencies, in *Input, call jsonCall) (*T, error) {
	if err := deps.requireLLM(); err != nil {
		return nil, err
	}
	prompt, err := prompts.Render(call.promptKey, call.data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s prompt: %w", call.promptKey, err)
	}

	return WithRetry(ctx, deps.Log, call.step, call.policy, in.Budget, func(ctx context.Context) (*T, error) {
		start := time.Now()
		resp, err := deps.LLM.GenerateJSON(ctx, prompt, call.tier)
		in.recordLLM(call.step, resp, time.Since(start))
		if err != nil {
			return nil, err
		}

		doc := llm.CleanJSONBlock(resp.Text)
		if call.schema != "" {
			if err := schemas.Validate(call.schema, []byte(doc)); err != nil {
				return nil, err
			}
		}
		var out T
		if err := json.Unmarshal([]byte(doc), &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", call.step, err)
		}
		return &out, nil
	})
}

func marshalIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
