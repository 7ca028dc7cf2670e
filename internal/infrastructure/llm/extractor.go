package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"UnionWins/internal/domain"
	"UnionWins/internal/infrastructure/parser"
	"UnionWins/internal/ports"
)

const extractorSystemPrompt = "You extract facts about union victories and labour wins from news articles. " +
	"Answer with a single JSON object and nothing else."

// Extractor fetches an article and asks a model for its structured fields.
type Extractor struct {
	fetcher   ports.PageFetcher
	reader    *parser.PageReader
	completer Completer
	model     string
}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor wires the page fetcher, markdown reader and completer.
func NewExtractor(fetcher ports.PageFetcher, reader *parser.PageReader, completer Completer, model string) *Extractor {
	return &Extractor{fetcher: fetcher, reader: reader, completer: completer, model: model}
}

type extractionAnswer struct {
	Title             string `json:"title"`
	UnionName         string `json:"union_name"`
	CategoryPrimary   string `json:"category_primary"`
	CategorySecondary string `json:"category_secondary"`
	Date              string `json:"date"`
	Summary           string `json:"summary"`
	Image             string `json:"image"`
}

// Extract returns whatever fields the model found; callers apply defaults.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (domain.Extraction, error) {
	body, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("fetch article: %w", err)
	}
	page, err := e.reader.Read(pageURL, body)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read article: %w", err)
	}

	answer, err := e.completer.Complete(ctx, Prompt{
		Model:  e.model,
		System: extractorSystemPrompt,
		User:   extractionPrompt(pageURL, page),
		JSON:   true,
	})
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract fields: %w", err)
	}

	var parsed extractionAnswer
	if err := json.Unmarshal([]byte(stripFences(answer)), &parsed); err != nil {
		return domain.Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = page.Title
	}

	var media []string
	seen := map[string]struct{}{}
	for _, img := range append([]string{strings.TrimSpace(parsed.Image)}, page.Images...) {
		if _, dup := seen[img]; dup || !isHTTPURL(img) {
			continue
		}
		seen[img] = struct{}{}
		media = append(media, img)
	}

	return domain.Extraction{
		Title:             title,
		Organization:      strings.TrimSpace(parsed.UnionName),
		CategoryPrimary:   strings.TrimSpace(parsed.CategoryPrimary),
		CategorySecondary: strings.TrimSpace(parsed.CategorySecondary),
		Date:              strings.TrimSpace(parsed.Date),
		Summary:           strings.TrimSpace(parsed.Summary),
		MediaURLs:         media,
	}, nil
}

func extractionPrompt(pageURL string, page parser.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article URL: %s\n", pageURL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", page.Title)
	}
	b.WriteString("\nExtract:\n")
	b.WriteString("- title: a concise, compelling title (max 100 characters)\n")
	b.WriteString("- union_name: the union involved, e.g. \"Unite\", \"GMB\", \"RMT\"\n")
	fmt.Fprintf(&b, "- category_primary and category_secondary: one of %s (secondary may be empty)\n",
		strings.Join(domain.Categories, ", "))
	b.WriteString("- date: the date of the win as YYYY-MM-DD, empty if unknown\n")
	b.WriteString("- summary: a clear 3-5 sentence summary of the win\n")
	b.WriteString("- image: URL of a relevant image from the article, empty if none\n")
	b.WriteString("\nArticle content (markdown):\n")
	b.WriteString(page.Text)
	return b.String()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
