package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	client *openai.Client
	model  string
	cfg    Config
}

func newOpenAIClient(cfg Config) *openAIClient {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openAIClient{client: openai.NewClient(cfg.APIKey), model: model, cfg: cfg}
}

// Complete calls the OpenAI chat completions API with the same bounded
// deadline and backoff policy as the Anthropic adapter, so the rest of the
// engine is indifferent to which provider is configured.
func (c *openAIClient) Complete(ctx context.Context, prompt string, maxTokens int, deadline time.Duration) (string, error) {
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
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     c.model,
			Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
			MaxTokens: maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai: empty response choices")
		}
		out = resp.Choices[0].Message.Content
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	return out, nil
}
