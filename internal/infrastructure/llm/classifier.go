package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const classifierSystemPrompt = "You curate news for a dashboard of trade union wins. " +
	"Pick links that point to specific articles about union victories, agreements, pay rises or other achievements. " +
	"Ignore generic pages, indexes, policy documents, leadership elections and unrelated news."

// Classifier asks a model which link candidates describe a union win.
type Classifier struct {
	completer Completer
	model     string
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier binds a completer and model.
func NewClassifier(completer Completer, model string) *Classifier {
	return &Classifier{completer: completer, model: model}
}

// Classify returns batch indices judged relevant. Out-of-range ids are dropped.
func (c *Classifier) Classify(ctx context.Context, batch []domain.Candidate) ([]int, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	lines := make([]string, 0, len(batch))
	for i, cand := range batch {
		lines = append(lines, fmt.Sprintf("ID %d: TEXT: %s | URL: %s | CONTEXT: %s", i, cand.Text, cand.URL, cand.Context))
	}

	answer, err := c.completer.Complete(ctx, Prompt{
		Model:  c.model,
		System: classifierSystemPrompt,
		User: "Analyze the following links. Return a JSON object with a key \"relevant_ids\" " +
			"holding the integer IDs that are likely union wins or achievements.\n\n" +
			strings.Join(lines, "\n"),
		JSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("classify candidates: %w", err)
	}

	var parsed struct {
		RelevantIDs []int `json:"relevant_ids"`
	}
	if err := json.Unmarshal([]byte(stripFences(answer)), &parsed); err != nil {
		return nil, fmt.Errorf("decode classifier answer: %w", err)
	}

	ids := make([]int, 0, len(parsed.RelevantIDs))
	seen := make(map[int]struct{}, len(parsed.RelevantIDs))
	for _, id := range parsed.RelevantIDs {
		if id < 0 || id >= len(batch) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
