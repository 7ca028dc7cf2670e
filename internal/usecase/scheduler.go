package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"UnionWins/internal/domain"
	"UnionWins/internal/ports"
)

// SchedulerDeps wires the two interval triggers with the use cases they feed.
type SchedulerDeps struct {
	Sessions        ports.SessionFactory
	SearchTrigger   ports.Trigger
	ScrapeTrigger   ports.Trigger
	Scrape          *ScrapeCoordinator
	Notifier        ports.Notifier
	Logger          *slog.Logger
	RequestInterval time.Duration
	ScrapeInterval  time.Duration
	WindowDays      int
	Location        *time.Location
	Now             func() time.Time
}

// Scheduler enqueues search requests and starts scrape sweeps on fixed intervals
// that survive restarts.
type Scheduler struct {
	sessions        ports.SessionFactory
	searchTrigger   ports.Trigger
	scrapeTrigger   ports.Trigger
	scrape          *ScrapeCoordinator
	notifier        ports.Notifier
	logger          *slog.Logger
	requestInterval time.Duration
	scrapeInterval  time.Duration
	windowDays      int
	location        *time.Location
	now             func() time.Time
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		sessions:        deps.Sessions,
		searchTrigger:   deps.SearchTrigger,
		scrapeTrigger:   deps.ScrapeTrigger,
		scrape:          deps.Scrape,
		notifier:        deps.Notifier,
		logger:          deps.Logger,
		requestInterval: deps.RequestInterval,
		scrapeInterval:  deps.ScrapeInterval,
		windowDays:      deps.WindowDays,
		location:        deps.Location,
		now:             deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "scheduler")
	if s.requestInterval <= 0 {
		s.requestInterval = 12 * time.Hour
	}
	if s.scrapeInterval <= 0 {
		s.scrapeInterval = 7 * 24 * time.Hour
	}
	if s.windowDays <= 0 {
		s.windowDays = 2
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NextFireTime applies the restart rule: one interval after the last run,
// but never earlier than one interval from now.
func NextFireTime(last time.Time, hasLast bool, now time.Time, interval time.Duration) time.Time {
	next := now.Add(interval)
	if !hasLast {
		return next
	}
	if fromLast := last.Add(interval); fromLast.After(next) {
		return fromLast
	}
	return next
}

// Start computes the first fire of each trigger from stored history and starts them.
func (s *Scheduler) Start(ctx context.Context) error {
	lastSearch, hasSearch, lastScrape, hasScrape, err := s.history(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	if s.searchTrigger != nil {
		first := NextFireTime(lastSearch, hasSearch, now, s.requestInterval)
		if err := s.searchTrigger.Start(ctx, first, s.requestInterval, s.enqueueJob); err != nil {
			return fmt.Errorf("start search trigger: %w", err)
		}
	}

	if s.scrapeTrigger != nil && s.scrape != nil {
		first := NextFireTime(lastScrape, hasScrape, now, s.scrapeInterval)
		if err := s.scrapeTrigger.Start(ctx, first, s.scrapeInterval, s.scrapeJob); err != nil {
			return fmt.Errorf("start scrape trigger: %w", err)
		}
	}

	return nil
}

// Stop gracefully tears down both triggers.
func (s *Scheduler) Stop(ctx context.Context) error {
	var firstErr error
	for _, trigger := range []ports.Trigger{s.searchTrigger, s.scrapeTrigger} {
		if trigger == nil {
			continue
		}
		if err := trigger.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnqueueSearch creates a pending request covering the window that ends at `at`.
func (s *Scheduler) EnqueueSearch(ctx context.Context, at time.Time) (domain.SearchRequest, error) {
	sess, err := s.sessions.OpenSession(ctx)
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("open session: %w", err)
	}
	defer closeQuietly(sess, s.logger)

	req, err := sess.CreateSearchRequest(ctx, DateRange(at, s.windowDays, s.location))
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("create search request: %w", err)
	}
	return req, nil
}

func (s *Scheduler) history(ctx context.Context) (lastSearch time.Time, hasSearch bool, lastScrape time.Time, hasScrape bool, err error) {
	sess, err := s.sessions.OpenSession(ctx)
	if err != nil {
		return time.Time{}, false, time.Time{}, false, fmt.Errorf("open session: %w", err)
	}
	defer closeQuietly(sess, s.logger)

	latest, hasSearch, err := sess.LatestSearchRequest(ctx)
	if err != nil {
		return time.Time{}, false, time.Time{}, false, fmt.Errorf("latest search request: %w", err)
	}
	lastScrape, hasScrape, err = sess.LatestSourceRun(ctx)
	if err != nil {
		return time.Time{}, false, time.Time{}, false, fmt.Errorf("latest source run: %w", err)
	}
	return latest.CreatedAt, hasSearch, lastScrape, hasScrape, nil
}

func (s *Scheduler) enqueueJob(ctx context.Context, at time.Time) {
	req, err := s.EnqueueSearch(ctx, at)
	if err != nil {
		s.logger.Error("scheduled search request not created", "error", err)
		return
	}
	s.logger.Info("search request enqueued", "request_id", req.ID, "date_range", req.DateRange)
}

func (s *Scheduler) scrapeJob(ctx context.Context, _ time.Time) {
	report, err := s.scrape.RunAll(ctx)
	if err != nil {
		s.logger.Error("scheduled scrape failed", "error", err)
		return
	}
	totals := report.Totals()
	s.logger.Info("scheduled scrape finished",
		"run_id", report.RunID,
		"sources", len(report.Results),
		"failed", report.Failed(),
		"submitted", totals.Submitted,
	)
	alert(ctx, s.notifier, s.logger, sweepSummary(report))
}

func closeQuietly(sess ports.Session, logger *slog.Logger) {
	if err := sess.Close(); err != nil {
		logger.Warn("close session", "error", err)
	}
}
