// Package llm abstracts the language model used to classify conversation
// text into memory and skill candidates. Whatever a provider returns is
// untrusted input to the rest of the system: it is redacted and gate-checked
// like anything else.
package llm

import (
	"context"
	"fmt"

	"github.com/steward-ai/steward/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// NewClient creates an LLM client based on the config provider setting.
// Model and request timeout come from the config too, with the config
// package owning the per-provider defaults. Providers are HTTP-only plus the
// mock; nothing here shells out to a local binary — spawning processes is on
// the blocklist for a reason.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "mock":
		return &MockClient{Response: &Response{Content: "[]", Provider: "mock"}}, nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultOllamaModel
		}
		return NewOllama(url, model, cfg.Timeout()), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultAnthropicModel
		}
		return NewAnthropic(cfg.AnthropicKey, model, cfg.Timeout()), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
