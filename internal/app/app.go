package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"UnionWins/internal/config"
	"UnionWins/internal/domain"
	"UnionWins/internal/infrastructure/fetcher"
	"UnionWins/internal/infrastructure/llm"
	"UnionWins/internal/infrastructure/notify"
	"UnionWins/internal/infrastructure/parser"
	"UnionWins/internal/infrastructure/scheduler"
	"UnionWins/internal/infrastructure/storage"
	"UnionWins/internal/logging"
	"UnionWins/internal/ports"
	"UnionWins/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	store        *storage.Store
	submissions  *usecase.SubmissionIngester
	scrape       *usecase.ScrapeCoordinator
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
}

// Option customises an Application, mostly for tests.
type Option func(*options)

type options struct {
	now      func() time.Time
	fetcher  ports.PageFetcher
	research ports.ResearchClient
}

// WithClock overrides the time source of the store and every use case.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFetcher replaces the HTTP page fetcher.
func WithFetcher(f ports.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithResearchClient replaces the research API client.
func WithResearchClient(r ports.ResearchClient) Option {
	return func(o *options) { o.research = r }
}

// New opens the store and builds every adapter and use case from cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a, err := build(ctx, cfg, baseLogger, store, o)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger, store *storage.Store, o options) (*Application, error) {
	pageFetcher := o.fetcher
	if pageFetcher == nil {
		pageFetcher = fetcher.New(fetcher.Options{
			Timeout:    time.Duration(cfg.Scrape.FetchTimeoutSeconds) * time.Second,
			MaxRetries: cfg.Scrape.MaxRetries,
			Backoff:    time.Duration(cfg.Scrape.BackoffMillis) * time.Millisecond,
			MinDelay:   time.Duration(cfg.Scrape.MinDelayMillis) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Scrape.MaxDelayMillis) * time.Millisecond,
			UserAgents: cfg.Scrape.UserAgents,
		}, logger)
	}

	api := llm.NewClient(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Timeout())
	research := o.research
	if research == nil {
		research = llm.NewResearchClient(api, cfg.LLM.ResearchModel)
	}

	completer, models, err := newCompleter(ctx, cfg.LLM, api)
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier
	if cfg.Notify.Telegram.Enabled() {
		t := cfg.Notify.Telegram
		notifier = notify.NewTelegram(t.BaseURL, t.BotToken, t.ChatID)
	}

	submissions := usecase.NewSubmissionIngester(usecase.SubmissionIngesterDeps{
		Extractor:       llm.NewExtractor(pageFetcher, parser.NewPageReader(0), completer, models.extractor),
		Logger:          logger,
		DefaultImageURL: cfg.Research.DefaultImageURL,
		CallTimeout:     cfg.LLM.Timeout(),
		Now:             o.now,
	})

	scrape := usecase.NewScrapeCoordinator(usecase.ScrapeDeps{
		Sessions:    store,
		Fetcher:     pageFetcher,
		Candidates:  parser.NewLinkExtractor(),
		Classifier:  llm.NewClassifier(completer, models.classifier),
		Submissions: submissions,
		Logger:      logger,
		Workers:     cfg.Scrape.Workers,
		BatchSize:   cfg.Scrape.BatchSize,
		CallTimeout: cfg.LLM.Timeout(),
		Now:         o.now,
	})

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Sessions: store,
		Research: research,
		Ingester: usecase.NewResultIngester(usecase.ResultIngesterDeps{
			Repairer:        llm.NewRepairer(completer, models.repair),
			Logger:          logger,
			CallTimeout:     cfg.LLM.Timeout(),
			InitialStatus:   domain.WinStatus(cfg.Research.InitialStatus),
			DefaultImageURL: cfg.Research.DefaultImageURL,
		}),
		Notifier:      notifier,
		Logger:        logger,
		SweepInterval: cfg.Orchestrator.SweepInterval(),
		StuckTimeout:  cfg.Orchestrator.StuckTaskTimeout(),
		CallTimeout:   cfg.Orchestrator.CallTimeout(),
		Now:           o.now,
	})

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Sessions:        store,
		SearchTrigger:   scheduler.NewIntervalTrigger("search", logger),
		ScrapeTrigger:   scheduler.NewIntervalTrigger("scrape", logger),
		Scrape:          scrape,
		Notifier:        notifier,
		Logger:          logger,
		RequestInterval: cfg.Scheduler.RequestInterval(),
		ScrapeInterval:  cfg.Scheduler.ScrapeInterval(),
		WindowDays:      cfg.Scheduler.WindowDays,
		Location:        cfg.Scheduler.Location(),
		Now:             o.now,
	})

	return &Application{
		cfg:          cfg,
		logger:       logger.With("component", "app"),
		now:          o.now,
		store:        store,
		submissions:  submissions,
		scrape:       scrape,
		orchestrator: orchestrator,
		scheduler:    sched,
	}, nil
}

type completionModels struct {
	classifier string
	extractor  string
	repair     string
}

func newCompleter(ctx context.Context, cfg config.LLMConfig, api *llm.Client) (llm.Completer, completionModels, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewChatCompleter(api), completionModels{
			classifier: cfg.ClassifierModel,
			extractor:  cfg.ExtractorModel,
			repair:     cfg.RepairModel,
		}, nil
	case "gemini":
		completer, err := llm.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiEndpoint, cfg.Timeout())
		if err != nil {
			return nil, completionModels{}, fmt.Errorf("llm provider gemini: %w", err)
		}
		return completer, completionModels{
			classifier: cfg.GeminiModel,
			extractor:  cfg.GeminiModel,
			repair:     cfg.GeminiModel,
		}, nil
	default:
		return nil, completionModels{}, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// Migrate creates missing tables and seeds configured sources.
func (a *Application) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	if len(a.cfg.Sources) == 0 {
		return nil
	}

	sess, err := a.store.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	for _, src := range a.cfg.Sources {
		if src.URL == "" {
			continue
		}
		if err := sess.EnsureSource(ctx, src.URL, src.Organization); err != nil {
			return fmt.Errorf("seed source %s: %w", src.URL, err)
		}
	}
	a.logger.Info("sources seeded", "count", len(a.cfg.Sources))
	return nil
}

// Run migrates, starts the orchestrator and scheduler and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	if err := a.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		a.stop()
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.logger.Info("unionwins running", "driver", a.cfg.Database.Driver, "llm_provider", a.cfg.LLM.Provider)
	<-ctx.Done()
	a.logger.Info("shutting down")
	return a.stop()
}

func (a *Application) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(a.scheduler.Stop(ctx), a.orchestrator.Stop(ctx))
}

// Scrape runs one sweep over every active source, or over sourceID alone when it is positive.
func (a *Application) Scrape(ctx context.Context, sourceID int64) (domain.SweepReport, error) {
	if sourceID <= 0 {
		return a.scrape.RunAll(ctx)
	}
	started := a.now()
	result := a.scrape.RunSource(ctx, sourceID)
	return domain.SweepReport{
		RunID:      fmt.Sprintf("source-%d", sourceID),
		StartedAt:  started,
		FinishedAt: a.now(),
		Results:    []domain.SourceResult{result},
	}, nil
}

// Submit ingests a single user-supplied URL.
func (a *Application) Submit(ctx context.Context, url, submittedBy string) (domain.Win, error) {
	sess, err := a.store.OpenSession(ctx)
	if err != nil {
		return domain.Win{}, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	return a.submissions.Submit(ctx, sess, url, submittedBy)
}

// Enqueue creates a pending search request for the window ending now.
func (a *Application) Enqueue(ctx context.Context) (domain.SearchRequest, error) {
	return a.scheduler.EnqueueSearch(ctx, a.now())
}

// Queue lists wins with the given moderation status, newest first.
func (a *Application) Queue(ctx context.Context, status domain.WinStatus, limit int) ([]domain.Win, error) {
	sess, err := a.store.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	return sess.ListWins(ctx, status, limit)
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}
