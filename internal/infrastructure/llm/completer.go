package llm

import (
	"context"
	"regexp"
	"strings"
)

// Prompt is a single system+user exchange.
type Prompt struct {
	Model       string
	System      string
	User        string
	JSON        bool
	Temperature *float32
}

// Completer returns the model's text answer to a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

var codeFence = regexp.MustCompile("```(?:json)?\\s*")

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(text string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
}

func float32Ptr(v float32) *float32 {
	return &v
}
