package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const (
	defaultWinTitle   = "Union Win"
	defaultWinSummary = "A victory for workers and their union."
	winDateLayout     = "2006-01-02"
)

// SubmissionIngesterDeps wires the ingester.
type SubmissionIngesterDeps struct {
	Extractor       ports.Extractor
	Logger          *slog.Logger
	DefaultImageURL string
	CallTimeout     time.Duration
	Now             func() time.Time
}

// SubmissionIngester turns one URL into a pending win.
type SubmissionIngester struct {
	extractor    ports.Extractor
	logger       *slog.Logger
	defaultImage string
	callTimeout  time.Duration
	now          func() time.Time
}

// NewSubmissionIngester constructs the ingester.
func NewSubmissionIngester(deps SubmissionIngesterDeps) *SubmissionIngester {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &SubmissionIngester{
		extractor:    deps.Extractor,
		logger:       logger.With("component", "submission_ingester"),
		defaultImage: deps.DefaultImageURL,
		callTimeout:  deps.CallTimeout,
		now:          now,
	}
}

// Submit extracts and stores url as a pending win. It returns domain.ErrDuplicate
// when the URL is already known, whether seen up front or lost in an insert race,
// and domain.ErrExtraction when nothing could be extracted.
func (s *SubmissionIngester) Submit(ctx context.Context, repo ports.WinRepository, url, submittedBy string) (domain.Win, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.Win{}, fmt.Errorf("submit: empty url")
	}

	exists, err := repo.WinExists(ctx, url)
	if err != nil {
		return domain.Win{}, fmt.Errorf("submit %s: %w", url, err)
	}
	if exists {
		return domain.Win{}, fmt.Errorf("submit %s: %w", url, domain.ErrDuplicate)
	}

	extraction, err := s.extract(ctx, url)
	if err != nil {
		s.logger.Warn("extraction failed", "url", url, "error", err)
		return domain.Win{}, fmt.Errorf("submit %s: %w: %w", url, domain.ErrExtraction, err)
	}

	win, err := repo.InsertWin(ctx, s.buildWin(url, submittedBy, extraction))
	if err != nil {
		return domain.Win{}, fmt.Errorf("submit %s: %w", url, err)
	}

	s.logger.Info("submission stored", "url", url, "win_id", win.ID, "submitted_by", submittedBy)
	return win, nil
}

func (s *SubmissionIngester) extract(ctx context.Context, url string) (domain.Extraction, error) {
	if s.extractor == nil {
		return domain.Extraction{}, fmt.Errorf("no extractor configured")
	}
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	return s.extractor.Extract(ctx, url)
}

func (s *SubmissionIngester) buildWin(url, submittedBy string, ex domain.Extraction) domain.Win {
	title := strings.TrimSpace(ex.Title)
	if title == "" {
		title = defaultWinTitle
	}
	summary := strings.TrimSpace(ex.Summary)
	if summary == "" {
		summary = defaultWinSummary
	}
	date := strings.TrimSpace(ex.Date)
	if _, err := time.Parse(winDateLayout, date); err != nil {
		date = s.now().Format(winDateLayout)
	}

	images := make([]string, 0, len(ex.MediaURLs))
	for _, m := range ex.MediaURLs {
		if m = strings.TrimSpace(m); m != "" {
			images = append(images, m)
		}
	}
	if len(images) == 0 && s.defaultImage != "" {
		images = append(images, s.defaultImage)
	}

	return domain.Win{
		Title:        title,
		Organization: strings.TrimSpace(ex.Organization),
		Categories:   domain.NormalizeCategories(ex.CategoryPrimary, ex.CategorySecondary),
		Date:         date,
		URL:          url,
		Summary:      summary,
		ImageURLs:    images,
		Status:       domain.WinPending,
		SubmittedBy:  submittedBy,
	}
}

// DescribeSubmissionError maps a Submit error to a message safe to show a client.
func DescribeSubmissionError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrDuplicate):
		return "This URL has already been submitted"
	case errors.Is(err, domain.ErrExtraction):
		return "Failed to extract information from URL"
	default:
		return "Submission failed, please try again later"
	}
}
