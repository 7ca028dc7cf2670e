package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiCompleter implements Completer with the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
}

var _ Completer = (*GeminiCompleter)(nil)

// NewGeminiCompleter creates a genai client. baseURL overrides the public endpoint when set
// and a positive timeout bounds every request.
func NewGeminiCompleter(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	opts := genai.HTTPOptions{BaseURL: baseURL}
	if timeout > 0 {
		opts.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client}, nil
}

// Complete runs a single GenerateContent call.
func (g *GeminiCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if p.Model == "" {
		return "", fmt.Errorf("gemini completion requires a model")
	}

	cfg := &genai.GenerateContentConfig{Temperature: p.Temperature}
	if system := strings.TrimSpace(p.System); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, p.Model, genai.Text(p.User), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate content: empty response")
	}
	return text, nil
}
