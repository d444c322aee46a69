package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"gala/internal/config"
	"gala/internal/logging"
)

// =============================================================================
// GEMINI CLIENT
// =============================================================================

// Gemini calls the Google GenAI API. Retries happen here so call sites stay
// a single Complete call.
type Gemini struct {
	client  *genai.Client
	model   string
	retries int
}

// NewGemini creates a Gemini client from config.
func NewGemini(cfg config.LLMConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredentials
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Gemini{client: client, model: model, retries: retries}, nil
}

// Provider implements Client.
func (g *Gemini) Provider() string { return "gemini" }

// Complete implements Client. Low temperature: every gala prompt asks for
// structured extraction or scoring, not prose.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err != nil {
			lastErr = err
			logging.LLMWarn("gemini attempt %d/%d failed: %v", attempt+1, g.retries+1, err)
			continue
		}
		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("gemini: empty response")
			continue
		}
		return text, nil
	}
	return "", fmt.Errorf("gemini: all %d attempts failed: %w", g.retries+1, lastErr)
}
