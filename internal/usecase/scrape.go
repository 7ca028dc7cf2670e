package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

const (
	fetchFailureMessage = "Failed to fetch page content - site may be blocking scrapers, have SSL issues, or be temporarily unavailable"
	interruptedMessage  = "Scrape interrupted before the source finished"
)

// ScrapeDeps wires the scrape coordinator.
type ScrapeDeps struct {
	Sessions    ports.SessionFactory
	Fetcher     ports.PageFetcher
	Candidates  ports.CandidateExtractor
	Classifier  ports.Classifier
	Submissions *SubmissionIngester
	Logger      *slog.Logger
	Workers     int
	BatchSize   int
	CallTimeout time.Duration
	Now         func() time.Time
}

// ScrapeCoordinator fans a scrape sweep out over active sources.
type ScrapeCoordinator struct {
	sessions    ports.SessionFactory
	fetcher     ports.PageFetcher
	candidates  ports.CandidateExtractor
	classifier  ports.Classifier
	submissions *SubmissionIngester
	logger      *slog.Logger
	workers     int
	batchSize   int
	callTimeout time.Duration
	now         func() time.Time
}

// NewScrapeCoordinator constructs the coordinator with defaults of 5 workers and batches of 20.
func NewScrapeCoordinator(deps ScrapeDeps) *ScrapeCoordinator {
	c := &ScrapeCoordinator{
		sessions:    deps.Sessions,
		fetcher:     deps.Fetcher,
		candidates:  deps.Candidates,
		classifier:  deps.Classifier,
		submissions: deps.Submissions,
		logger:      deps.Logger,
		workers:     deps.Workers,
		batchSize:   deps.BatchSize,
		callTimeout: deps.CallTimeout,
		now:         deps.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "scrape")
	if c.workers <= 0 {
		c.workers = 5
	}
	if c.batchSize <= 0 {
		c.batchSize = 20
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// RunAll scrapes every active source on a bounded pool. A failing source never
// stops the others; the returned error only covers reading the source list.
func (c *ScrapeCoordinator) RunAll(ctx context.Context) (domain.SweepReport, error) {
	report := domain.SweepReport{RunID: uuid.NewString(), StartedAt: c.now()}
	logger := c.logger.With("run_id", report.RunID)

	ids, err := c.activeSources(ctx)
	if err != nil {
		return report, err
	}
	logger.Info("scrape sweep started", "sources", len(ids), "workers", c.workers)

	results := make([]domain.SourceResult, len(ids))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = c.RunSource(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.FinishedAt = c.now()
	totals := report.Totals()
	logger.Info("scrape sweep finished",
		"sources", len(results),
		"failed", report.Failed(),
		"checked", totals.Checked,
		"classified", totals.Classified,
		"submitted", totals.Submitted,
	)
	return report, nil
}

func (c *ScrapeCoordinator) activeSources(ctx context.Context) ([]int64, error) {
	sess, err := c.sessions.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer c.closeSession(sess)

	ids, err := sess.ActiveSourceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	return ids, nil
}

// RunSource runs fetch, extract, dedupe, classify and submit for one source on
// its own session and records the outcome on the source row.
func (c *ScrapeCoordinator) RunSource(ctx context.Context, id int64) (result domain.SourceResult) {
	result = domain.SourceResult{SourceID: id}
	logger := c.logger.With("source_id", id)

	sess, err := c.sessions.OpenSession(ctx)
	if err != nil {
		logger.Error("open session", "error", err)
		return failed(result, c.now(), fmt.Sprintf("open session: %v", err))
	}
	defer c.closeSession(sess)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scrape worker panicked", "panic", r)
			result = failed(result, c.now(), fmt.Sprintf("unexpected error: %v", r))
			c.record(ctx, sess, result, logger)
		}
	}()

	src, err := sess.SourceByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failed(result, c.now(), "Source not found")
		}
		return failed(result, c.now(), fmt.Sprintf("load source: %v", err))
	}
	result.URL = src.URL
	logger = logger.With("url", src.URL)

	result = c.scrape(ctx, sess, src, result, logger)
	if ctx.Err() != nil {
		// An interrupted run says nothing about the site, so the previous outcome stays.
		logger.Warn("scrape interrupted, outcome not recorded", "error", ctx.Err())
		return failed(result, c.now(), interruptedMessage)
	}
	c.record(ctx, sess, result, logger)
	return result
}

func (c *ScrapeCoordinator) scrape(ctx context.Context, sess ports.Session, src domain.Source, result domain.SourceResult, logger *slog.Logger) domain.SourceResult {
	body, err := c.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		if ctx.Err() != nil {
			return failed(result, c.now(), interruptedMessage)
		}
		logger.Warn("fetch failed", "error", err)
		return failed(result, c.now(), fetchFailureMessage)
	}

	candidates, err := c.candidates.ExtractCandidates(src.URL, body)
	if err != nil {
		return failed(result, c.now(), fmt.Sprintf("extract candidates: %v", err))
	}
	result.RawCandidates = len(candidates)

	fresh, err := c.dropKnown(ctx, sess, candidates)
	if err != nil {
		return failed(result, c.now(), fmt.Sprintf("dedupe candidates: %v", err))
	}
	result.Checked = len(fresh)

	relevant := c.classify(ctx, fresh, logger)
	result.Classified = len(relevant)

	for _, cand := range relevant {
		if ctx.Err() != nil {
			break
		}
		_, err := c.submissions.Submit(ctx, sess, cand.URL, domain.OriginAutoScraped)
		switch {
		case err == nil:
			result.Submitted++
		case errors.Is(err, domain.ErrDuplicate):
			logger.Debug("candidate already submitted", "candidate", cand.URL)
		default:
			logger.Warn("submit candidate", "candidate", cand.URL, "error", err)
		}
	}

	result.Status = domain.SourceSuccess
	result.ScrapedAt = c.now()
	logger.Info("source scraped",
		"raw", result.RawCandidates,
		"checked", result.Checked,
		"classified", result.Classified,
		"submitted", result.Submitted,
	)
	return result
}

func (c *ScrapeCoordinator) dropKnown(ctx context.Context, repo ports.WinRepository, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	urls := make([]string, len(candidates))
	for i, cand := range candidates {
		urls[i] = cand.URL
	}
	known, err := repo.ExistingWinURLs(ctx, urls)
	if err != nil {
		return nil, err
	}

	fresh := make([]domain.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if !known[cand.URL] {
			fresh = append(fresh, cand)
		}
	}
	return fresh, nil
}

// classify sends candidates in fixed-size batches. A failed batch is logged and skipped.
func (c *ScrapeCoordinator) classify(ctx context.Context, candidates []domain.Candidate, logger *slog.Logger) []domain.Candidate {
	var relevant []domain.Candidate
	for start := 0; start < len(candidates); start += c.batchSize {
		end := min(start+c.batchSize, len(candidates))
		batch := candidates[start:end]

		ids, err := c.classifyBatch(ctx, batch)
		if err != nil {
			logger.Warn("classifier batch skipped", "batch_start", start, "size", len(batch), "error", err)
			continue
		}

		picked := make(map[int]struct{}, len(ids))
		for _, id := range ids {
			if id < 0 || id >= len(batch) {
				continue
			}
			if _, dup := picked[id]; dup {
				continue
			}
			picked[id] = struct{}{}
			relevant = append(relevant, batch[id])
		}
	}
	return relevant
}

func (c *ScrapeCoordinator) classifyBatch(ctx context.Context, batch []domain.Candidate) ([]int, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.classifier.Classify(ctx, batch)
}

func (c *ScrapeCoordinator) record(ctx context.Context, sess ports.Session, result domain.SourceResult, logger *slog.Logger) {
	at := result.ScrapedAt
	if at.IsZero() {
		at = c.now()
	}
	err := sess.RecordSourceRun(context.WithoutCancel(ctx), result.SourceID, domain.SourceRun{
		At:     at,
		Status: result.Status,
		Error:  result.Error,
	})
	if err != nil {
		logger.Error("record source run", "error", err)
	}
}

func (c *ScrapeCoordinator) closeSession(sess ports.Session) {
	if err := sess.Close(); err != nil {
		c.logger.Warn("close session", "error", err)
	}
}

func failed(result domain.SourceResult, at time.Time, message string) domain.SourceResult {
	result.Status = domain.SourceError
	result.Error = message
	result.ScrapedAt = at
	return result
}
