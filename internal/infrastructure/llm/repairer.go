package llm

import (
	"context"
	"fmt"

	"UnionWins/internal/ports"
)

const repairSystemPrompt = "You are a JSON repair expert. Fix malformed JSON and return only valid JSON, no explanations."

// Repairer asks a model to turn broken research output into a valid JSON array.
type Repairer struct {
	completer Completer
	model     string
}

var _ ports.Repairer = (*Repairer)(nil)

// NewRepairer binds a completer and model.
func NewRepairer(completer Completer, model string) *Repairer {
	return &Repairer{completer: completer, model: model}
}

// Repair returns the corrected text with any code fences removed.
func (r *Repairer) Repair(ctx context.Context, malformed string) (string, error) {
	answer, err := r.completer.Complete(ctx, Prompt{
		Model:  r.model,
		System: repairSystemPrompt,
		User: "Fix the following malformed JSON and return ONLY the corrected JSON array.\n\n" +
			"Each object has the fields title, union_name (string or null), emoji, date (YYYY-MM-DD), url and summary.\n\n" +
			"Malformed JSON:\n" + malformed,
		Temperature: float32Ptr(0),
	})
	if err != nil {
		return "", fmt.Errorf("repair json: %w", err)
	}
	return stripFences(answer), nil
}
