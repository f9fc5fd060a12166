// Package llmclient implements the engine's one external LLM abstraction
// (spec §6: "A single narrow abstraction: complete(prompt, max_tokens,
// deadline) → text. The engine never treats the response as authoritative").
package llmclient

import (
	"context"
	"time"
)

// Completer is the narrow interface every provider adapter implements.
// Callers never see provider-specific request/response shapes.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, deadline time.Duration) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string // "anthropic" or "openai"
	APIKey    string
	Model     string
	MaxTokens int
	Deadline  time.Duration
}

// New constructs a Completer for the configured provider.
func New(cfg Config) (Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, &UnsupportedProviderError{Provider: cfg.Provider}
	}
}

// UnsupportedProviderError reports an unrecognised Config.Provider value.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return "llmclient: unsupported provider " + e.Provider
}
