// Package llm provides text-generation gateways. A gateway is an untrusted
// oracle: prompt in, free text out, with no schema enforcement.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mailcal/internal/config"
)

// Generator issues a single synchronous text-generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// New builds the gateway selected by cfg.Provider.
func New(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(ctx, logger, cfg.APIKey, cfg.Model, cfg.Temperature)
	case "openai", "":
		httpClient := &http.Client{Timeout: 120 * time.Second}
		return NewChatClient(logger, httpClient, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
