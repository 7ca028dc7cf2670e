package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

// ResearchClient runs long web-search research as background responses.
type ResearchClient struct {
	client *Client
	model  string
}

var _ ports.ResearchClient = (*ResearchClient)(nil)

// NewResearchClient binds a model to the responses endpoint.
func NewResearchClient(client *Client, model string) *ResearchClient {
	return &ResearchClient{client: client, model: model}
}

type responseRequest struct {
	Model      string            `json:"model"`
	Input      string            `json:"input"`
	Background bool              `json:"background"`
	Tools      []map[string]any  `json:"tools,omitempty"`
	Reasoning  map[string]string `json:"reasoning,omitempty"`
}

type responseObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit starts a background research task and returns its handle.
func (r *ResearchClient) Submit(ctx context.Context, prompt string) (string, error) {
	req := responseRequest{
		Model:      r.model,
		Input:      prompt,
		Background: true,
		Tools:      []map[string]any{{"type": "web_search"}},
		Reasoning:  map[string]string{"effort": "high"},
	}

	var resp responseObject
	if err := r.client.post(ctx, "/responses", req, &resp); err != nil {
		return "", fmt.Errorf("create research task: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create research task: response missing id")
	}
	return resp.ID, nil
}

// Poll reads the current state of a research task. Output is set only once completed.
func (r *ResearchClient) Poll(ctx context.Context, handle string) (domain.TaskPoll, error) {
	var resp responseObject
	if err := r.client.get(ctx, "/responses/"+url.PathEscape(handle), &resp); err != nil {
		return domain.TaskPoll{}, fmt.Errorf("poll research task %s: %w", handle, err)
	}

	poll := domain.TaskPoll{State: mapResponseStatus(resp.Status)}
	if poll.State == domain.TaskCompleted {
		poll.Output = resp.outputText()
	}
	return poll, nil
}

func mapResponseStatus(status string) domain.TaskState {
	switch status {
	case "queued":
		return domain.TaskQueued
	case "completed":
		return domain.TaskCompleted
	case "failed", "cancelled", "incomplete":
		return domain.TaskFailed
	default:
		return domain.TaskRunning
	}
}

func (r responseObject) outputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Type != "output_text" {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
