package llm

import (
	"context"
	"fmt"
	"strings"
)

// ChatCompleter implements Completer over the chat completions endpoint.
type ChatCompleter struct {
	client *Client
}

var _ Completer = (*ChatCompleter)(nil)

// NewChatCompleter wraps an HTTP client.
func NewChatCompleter(client *Client) *ChatCompleter {
	return &ChatCompleter{client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    *float32      `json:"temperature,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat turn and returns the first choice.
func (c *ChatCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if p.Model == "" {
		return "", fmt.Errorf("chat completion requires a model")
	}

	req := chatRequest{
		Model:       p.Model,
		Temperature: p.Temperature,
	}
	if system := strings.TrimSpace(p.System); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.User})
	if p.JSON {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatResponse
	if err := c.client.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion: empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	return content, nil
}
