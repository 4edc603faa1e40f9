package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiClient is a Generator backed by the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	logger      *slog.Logger
	modelName   string
	temperature float32
}

// NewGeminiClient creates a Gemini gateway. An empty apiKey lets the SDK fall
// back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, logger *slog.Logger, apiKey, modelName string, temperature float32) (*GeminiClient, error) {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		logger:      logger,
		modelName:   modelName,
		temperature: temperature,
	}, nil
}

// Generate implements Generator.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(maxTokens),
	}

	g.logger.Debug("Calling Gemini", "model", g.modelName, "max_tokens", maxTokens)
	res, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
