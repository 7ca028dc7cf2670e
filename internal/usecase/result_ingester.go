package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const defaultEmoji = "✊"

var (
	fencedArray = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
	bareArray   = regexp.MustCompile(`(?s)\[.*\]`)
)

// ResearchItem is one win reported by the research task.
type ResearchItem struct {
	Title     string `json:"title" validate:"required"`
	UnionName string `json:"union_name"`
	Emoji     string `json:"emoji"`
	Date      string `json:"date" validate:"required"`
	URL       string `json:"url" validate:"required"`
	Summary   string `json:"summary" validate:"required"`
}

func (it *ResearchItem) trim() {
	it.Title = strings.TrimSpace(it.Title)
	it.UnionName = strings.TrimSpace(it.UnionName)
	it.Emoji = strings.TrimSpace(it.Emoji)
	it.Date = strings.TrimSpace(it.Date)
	it.URL = strings.TrimSpace(it.URL)
	it.Summary = strings.TrimSpace(it.Summary)
}

// ParseResult is either the raw array elements or the reason parsing failed.
// Fragment is the text that was handed to the JSON decoder.
type ParseResult struct {
	Items    []json.RawMessage
	Fragment string
	Err      error
}

// OK reports whether the output parsed into an array.
func (r ParseResult) OK() bool {
	return r.Err == nil
}

// ParseResearchOutput locates a JSON array in free-form model output, looking
// inside code fences first and then for the outermost brackets.
func ParseResearchOutput(text string) ParseResult {
	fragment := strings.TrimSpace(text)
	if m := fencedArray.FindStringSubmatch(fragment); m != nil {
		fragment = m[1]
	} else if !strings.HasPrefix(fragment, "[") {
		if m := bareArray.FindString(fragment); m != "" {
			fragment = m
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(fragment), &items); err != nil {
		return ParseResult{Fragment: fragment, Err: fmt.Errorf("parse research output: %w", err)}
	}
	return ParseResult{Items: items, Fragment: fragment}
}

// ResultIngesterDeps wires the ingester.
type ResultIngesterDeps struct {
	Repairer        ports.Repairer
	Logger          *slog.Logger
	InitialStatus   domain.WinStatus
	DefaultImageURL string
	CallTimeout     time.Duration
}

// ResultIngester turns research output into wins.
type ResultIngester struct {
	repairer     ports.Repairer
	logger       *slog.Logger
	status       domain.WinStatus
	defaultImage string
	callTimeout  time.Duration
	validate     *validator.Validate
}

// NewResultIngester constructs the ingester; an invalid status falls back to pending
// and repair calls are bounded by 120s unless CallTimeout says otherwise.
func NewResultIngester(deps ResultIngesterDeps) *ResultIngester {
	status := deps.InitialStatus
	if !status.Valid() {
		status = domain.WinPending
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callTimeout := deps.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &ResultIngester{
		repairer:     deps.Repairer,
		logger:       logger.With("component", "result_ingester"),
		status:       status,
		defaultImage: deps.DefaultImageURL,
		callTimeout:  callTimeout,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Ingest parses output, repairing it at most once, and inserts each valid item
// on its own. Duplicate URLs are skipped. It returns the number of rows inserted.
func (r *ResultIngester) Ingest(ctx context.Context, repo ports.WinRepository, output string) (int, error) {
	parsed := ParseResearchOutput(output)
	if !parsed.OK() {
		parsed = r.repair(ctx, parsed)
		if !parsed.OK() {
			return 0, parsed.Err
		}
	}

	r.logger.Info("parsed research output", "items", len(parsed.Items))

	inserted := 0
	for i, raw := range parsed.Items {
		var item ResearchItem
		if err := json.Unmarshal(raw, &item); err != nil {
			r.logger.Warn("skip undecodable research item", "index", i, "error", err)
			continue
		}
		item.trim()
		if err := r.validate.Struct(item); err != nil {
			r.logger.Warn("skip invalid research item", "index", i, "title", item.Title, "error", err)
			continue
		}

		_, err := repo.InsertWin(ctx, r.toWin(item))
		switch {
		case err == nil:
			inserted++
			r.logger.Info("research win added", "title", item.Title, "url", item.URL)
		case errors.Is(err, domain.ErrDuplicate):
			r.logger.Debug("research win already known", "url", item.URL)
		default:
			return inserted, fmt.Errorf("insert research win %s: %w", item.URL, err)
		}
	}

	return inserted, nil
}

// repair runs the single allowed repair pass. On any failure the original result is kept.
func (r *ResultIngester) repair(ctx context.Context, original ParseResult) ParseResult {
	if r.repairer == nil {
		return original
	}

	r.logger.Warn("malformed research output, attempting repair", "error", original.Err)
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	fixed, err := r.repairer.Repair(callCtx, original.Fragment)
	if err != nil {
		r.logger.Error("repair failed", "error", err)
		return original
	}

	repaired := ParseResearchOutput(fixed)
	if !repaired.OK() {
		r.logger.Error("repaired output still malformed", "error", repaired.Err)
		return original
	}
	return repaired
}

func (r *ResultIngester) toWin(item ResearchItem) domain.Win {
	emoji := item.Emoji
	if emoji == "" {
		emoji = defaultEmoji
	}
	var images []string
	if r.defaultImage != "" {
		images = []string{r.defaultImage}
	}
	return domain.Win{
		Title:        item.Title,
		Organization: item.UnionName,
		Categories:   []string{},
		Emoji:        emoji,
		Date:         item.Date,
		URL:          item.URL,
		Summary:      item.Summary,
		ImageURLs:    images,
		Status:       r.status,
		SubmittedBy:  domain.OriginAutoResearch,
	}
}
