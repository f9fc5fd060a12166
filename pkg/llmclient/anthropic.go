package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/liushuangls/go-anthropic/v2"
)

type anthropicClient struct {
	client *anthropic.Client
	model  anthropic.Model
	cfg    Config
}

func newAnthropicClient(cfg Config) *anthropicClient {
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropic.ModelClaude3Dot5SonnetLatest
	}
	return &anthropicClient{client: anthropic.NewClient(cfg.APIKey), model: model, cfg: cfg}
}

// Complete calls the Anthropic Messages API with a bounded deadline and a
// short exponential backoff over transient failures — C2 and C9's own
// fallbacks mean a failed completion here degrades functionality, it never
// aborts the request (spec §5: "External LLM calls have their own shorter
// deadline and may be abandoned without cancelling the whole task").
func (c *anthropicClient) Complete(ctx context.Context, prompt string, maxTokens int, deadline time.Duration) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if deadline <= 0 {
		deadline = c.cfg.Deadline
	}
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = deadline
	bo.InitialInterval = 100 * time.Millisecond

	var out string
	err := backoff.Retry(func() error {
		resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     c.model,
			Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Content) == 0 {
			return fmt.Errorf("anthropic: empty response content")
		}
		out = resp.Content[0].GetText()
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	return out, nil
}
